package model

// SeqStats are the ISN-sequence-generation statistics Nmap's SEQ test family
// derives from the six SEQ probes (spec.md §4.5).
type SeqStats struct {
	GCD uint32  // greatest common divisor of consecutive ISN deltas
	ISR float64 // mean of consecutive ISN deltas (raw, not converted to nmap's log2-scaled ISR index)
	SP  float64 // standard deviation of the ISR samples
	TI  string  // IPID sequence class for the probed port ("I", "Z", "RD", ...)
	CI  string  // IPID sequence class for the closed-port probes
	II  string  // IPID sequence class for the ICMP probes
	SS  string  // shared sequence counter between TI/II ("S" or "O")
	TS  string  // TCP timestamp option granularity class
}

// TCPOptionProfile records one probe's TCP option ordering/window, used by
// the OPS and WIN test families.
type TCPOptionProfile struct {
	Ordering []string // e.g. []string{"MSS","WSCALE","NOP","NOP","TIMESTAMP","SACK_PERM"}
	Window   uint16
}

// ProbeResponseFeature is the normalized, per-probe feature nmap calls a
// "test line" (e.g. "T1(R=Y%DF=Y%W=FAFF%S=O%A=S+%F=AS...)"). The engine
// builds these directly off wire bytes; matching against a signature
// database is done elsewhere so the core never needs to know the database's
// on-disk format (spec.md Non-goals: "OS-detection signature database format").
type ProbeResponseFeature struct {
	Name   string // OS-probe matrix name: "SEQ1".."SEQ6","IE1","IE2","U1","ECN","T2".."T7"
	Fields map[string]string
}

// OsFingerprint is the full feature vector collected for one target across
// the 16-probe matrix (or the IPv6 equivalent matrix, which shares the same
// shape). It becomes immutable once the sequencer completes.
type OsFingerprint struct {
	Target   *Target
	Seq      SeqStats
	Options  []TCPOptionProfile // one per SEQ probe
	Features []ProbeResponseFeature
}

// OsCandidate is one scored match against a (consumed, externally parsed)
// signature database entry.
type OsCandidate struct {
	Name     string
	CPE      []string
	Accuracy float64 // 0..100, matching nmap's percentage convention
}
