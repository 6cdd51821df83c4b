package resolver

import "github.com/dnsscience/dnsiter/internal/wire"

type decisionKind int

const (
	decisionFinalOK decisionKind = iota
	decisionFinalNXDOMAIN
	decisionFinalNODATA
	decisionCNAME
	decisionReferral
	decisionRetry
)

func (k decisionKind) String() string {
	switch k {
	case decisionFinalOK:
		return "final_ok"
	case decisionFinalNXDOMAIN:
		return "final_nxdomain"
	case decisionFinalNODATA:
		return "final_nodata"
	case decisionCNAME:
		return "cname"
	case decisionReferral:
		return "referral"
	default:
		return "retry"
	}
}

// decision is the single classification point for a parsed reply,
// keeping the resolution loop itself free of per-rcode branching.
type decision struct {
	kind        decisionKind
	rcode       uint16
	rrset       []wire.RR
	cnameTarget string
	negativeTTL uint32

	nextNSIPs   []string
	nextNSNames []string
}

// classify inspects a parsed reply for qname/qtype and decides what
// the resolution loop should do next.
func classify(msg *wire.Message, qname string, qtype uint16) decision {
	rcode := msg.Header.Rcode()

	if rcode == 3 {
		ttl, _ := negativeTTLFromSOA(msg)
		return decision{kind: decisionFinalNXDOMAIN, rcode: rcode, negativeTTL: ttl}
	}
	if rcode != 0 {
		return decision{kind: decisionRetry, rcode: rcode}
	}

	if rrset := collectAnswerTypeForName(msg, qname, qtype); len(rrset) > 0 {
		return decision{kind: decisionFinalOK, rcode: rcode, rrset: rrset}
	}

	if target, ok := findCNAMETargetFor(msg, qname); ok {
		return decision{kind: decisionCNAME, rcode: rcode, cnameTarget: target}
	}

	if ttl, ok := negativeTTLFromSOA(msg); ok {
		return decision{kind: decisionFinalNODATA, rcode: rcode, negativeTTL: ttl}
	}

	nsNames := collectNSNames(msg)
	if len(nsNames) > 0 {
		nsSet := make(map[string]bool, len(nsNames))
		for _, n := range nsNames {
			nsSet[n] = true
		}
		glueIPs := collectGlueIPsFor(msg, nsSet)
		return decision{kind: decisionReferral, rcode: rcode, nextNSIPs: glueIPs, nextNSNames: nsNames}
	}

	return decision{kind: decisionRetry, rcode: rcode}
}

func collectAnswerTypeForName(msg *wire.Message, qname string, qtype uint16) []wire.RR {
	var out []wire.RR
	for _, rr := range msg.Answer {
		if wire.Normalize(rr.Name) == qname && rr.Type == qtype && rr.Class == wire.ClassIN {
			out = append(out, rr)
		}
	}
	return out
}

func findCNAMETargetFor(msg *wire.Message, qname string) (string, bool) {
	for _, rr := range msg.Answer {
		if rr.Type != wire.TypeCNAME || rr.Class != wire.ClassIN {
			continue
		}
		if wire.Normalize(rr.Name) != qname {
			continue
		}
		if target, ok := rr.RDATAName(msg); ok && target != "" {
			return wire.Normalize(target), true
		}
	}
	return "", false
}

func collectNSNames(msg *wire.Message) []string {
	var out []string
	for _, rr := range msg.Authority {
		if rr.Type != wire.TypeNS || rr.Class != wire.ClassIN {
			continue
		}
		if name, ok := rr.RDATAName(msg); ok && name != "" {
			out = append(out, wire.Normalize(name))
		}
	}
	return out
}

func collectGlueIPsFor(msg *wire.Message, nsNames map[string]bool) []string {
	var out []string
	for _, rr := range msg.Additional {
		if rr.Class != wire.ClassIN {
			continue
		}
		if !nsNames[wire.Normalize(rr.Name)] {
			continue
		}
		switch rr.Type {
		case wire.TypeA:
			if ip, ok := rr.A(); ok {
				out = append(out, ip)
			}
		case wire.TypeAAAA:
			if ip, ok := rr.AAAA(); ok {
				out = append(out, ip)
			}
		}
	}
	return out
}

// negativeTTLFromSOA looks for an authority-section SOA record and
// returns its MINIMUM field as the negative-caching TTL, falling back
// to the SOA RR's own TTL if the RDATA doesn't parse.
func negativeTTLFromSOA(msg *wire.Message) (uint32, bool) {
	for _, rr := range msg.Authority {
		if rr.Type != wire.TypeSOA || rr.Class != wire.ClassIN {
			continue
		}
		if min, ok := rr.SOAMinimum(msg); ok {
			return min, true
		}
		return rr.TTL, true
	}
	return 0, false
}
