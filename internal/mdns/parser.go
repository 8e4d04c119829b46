package mdns

import (
	"net"
	"strings"

	"golang.org/x/net/dns/dnsmessage"
)

// Record is one resource record extracted from a response, normalized
// enough for the aggregator to merge across packets without caring about
// wire-format detail.
type Record struct {
	Name     string
	Type     dnsmessage.Type
	TTL      uint32
	PTR      string            // PTR target, when Type == PTR
	Target   string            // SRV target host, when Type == SRV
	Port     uint16            // SRV port, when Type == SRV
	Addr     net.IP            // A/AAAA address
	TXT      map[string]string // TXT key/value pairs, when Type == TXT
	IsGoodbye bool             // TTL == 0: this record/service is withdrawn
}

// ParseResponse extracts every answer/authority/additional record from a
// raw mDNS response packet.
func ParseResponse(data []byte) ([]Record, error) {
	var parser dnsmessage.Parser
	if _, err := parser.Start(data); err != nil {
		return nil, err
	}
	if err := parser.SkipAllQuestions(); err != nil {
		return nil, err
	}

	var records []Record
	records = append(records, parseSection(func() (dnsmessage.Resource, error) { return parser.Answer() })...)
	records = append(records, parseSection(func() (dnsmessage.Resource, error) { return parser.Authority() })...)
	records = append(records, parseSection(func() (dnsmessage.Resource, error) { return parser.Additional() })...)
	return records, nil
}

func parseSection(next func() (dnsmessage.Resource, error)) []Record {
	var out []Record
	for {
		rr, err := next()
		if err == dnsmessage.ErrSectionDone {
			return out
		}
		if err != nil {
			return out
		}
		if rec, ok := toRecord(rr); ok {
			out = append(out, rec)
		}
	}
}

func toRecord(rr dnsmessage.Resource) (Record, bool) {
	name := strings.TrimSuffix(rr.Header.Name.String(), ".")
	base := Record{Name: name, Type: rr.Header.Type, TTL: rr.Header.TTL, IsGoodbye: rr.Header.TTL == 0}

	switch body := rr.Body.(type) {
	case *dnsmessage.PTRResource:
		base.PTR = strings.TrimSuffix(body.PTR.String(), ".")
		return base, true
	case *dnsmessage.SRVResource:
		base.Target = strings.TrimSuffix(body.Target.String(), ".")
		base.Port = body.Port
		return base, true
	case *dnsmessage.AResource:
		base.Addr = net.IP(body.A[:])
		return base, true
	case *dnsmessage.AAAAResource:
		base.Addr = net.IP(body.AAAA[:])
		return base, true
	case *dnsmessage.TXTResource:
		base.TXT = make(map[string]string, len(body.TXT))
		for _, kv := range body.TXT {
			if idx := strings.IndexByte(kv, '='); idx >= 0 {
				base.TXT[kv[:idx]] = kv[idx+1:]
			} else if kv != "" {
				base.TXT[kv] = ""
			}
		}
		return base, true
	default:
		return Record{}, false
	}
}
