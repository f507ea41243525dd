package detection

import (
	"time"

	"github.com/gosnmp/gosnmp"

	"scancore/internal/model"
)

// ProbeSNMP is the udp/161 fast path: a single sysDescr.0 GET under the
// public community string, skipping the generic service-probe payload
// matching that UDP ports otherwise need (SNMP agents rarely reply to
// anything but a well-formed SNMP packet, so a generic probe train would
// just burn the whole rarity ladder for nothing).
func ProbeSNMP(addr string, timeout time.Duration) (*model.ServiceInfo, error) {
	client := &gosnmp.GoSNMP{
		Target:    addr,
		Port:      161,
		Community: "public",
		Version:   gosnmp.Version2c,
		Timeout:   timeout,
		Retries:   0,
	}
	if err := client.Connect(); err != nil {
		return nil, err
	}
	defer client.Conn.Close()

	result, err := client.Get([]string{".1.3.6.1.2.1.1.1.0"}) // sysDescr.0
	if err != nil {
		return nil, err
	}
	if len(result.Variables) == 0 {
		return nil, nil
	}

	desc := ""
	if b, ok := result.Variables[0].Value.([]byte); ok {
		desc = string(b)
	}
	return &model.ServiceInfo{
		Name:       "snmp",
		ExtraInfo:  desc,
		Confidence: 1.0,
	}, nil
}
