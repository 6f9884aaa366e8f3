//go:build windows

package source

import "github.com/yusufpapurcu/wmi"

type wmiQuerier struct{}

func defaultQuerier() querier {
	return wmiQuerier{}
}

func (wmiQuerier) Query(query, namespace string, dst *[]wmiSensor) error {
	return wmi.QueryNamespace(query, dst, namespace)
}

func (wmiQuerier) QueryHardware(query, namespace string, dst *[]wmiHardware) error {
	return wmi.QueryNamespace(query, dst, namespace)
}
