package lib

// congestionControl holds the sender's window state. cwnd and ssthresh never
// drop below 1.
type congestionControl struct {
	mss      uint32
	cwnd     uint32
	ssthresh uint32
	grown    bool // congestion avoidance growth already applied this round
}

func newCongestionControl(mss, cwnd, ssthresh uint32) congestionControl {
	cc := congestionControl{mss: mss, cwnd: cwnd, ssthresh: ssthresh}
	if cc.cwnd == 0 {
		cc.cwnd = 1
	}
	if cc.ssthresh == 0 {
		cc.ssthresh = 1
	}
	return cc
}

func (cc *congestionControl) slowStart() bool {
	return cc.cwnd < cc.ssthresh
}

func (cc *congestionControl) startRound() {
	cc.grown = false
}

// onAck grows the window for an in-order acknowledgement: one MSS per ack in
// slow start, one MSS per round in congestion avoidance.
func (cc *congestionControl) onAck() {
	if cc.slowStart() {
		cc.cwnd += cc.mss
		return
	}
	if !cc.grown {
		cc.cwnd += cc.mss
		cc.grown = true
	}
}

// onTimeout collapses the window back to slow start.
func (cc *congestionControl) onTimeout() {
	cc.ssthresh = max(cc.cwnd/2, 1)
	cc.cwnd = min(cc.mss, cc.ssthresh)
}

// onDuplicates halves the window once for a round that saw duplicate acks.
func (cc *congestionControl) onDuplicates() {
	half := cc.cwnd / 2
	cc.ssthresh = max(half, 1)
	cc.cwnd = half + 1
}
