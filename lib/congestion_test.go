package lib

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

type ccState struct {
	Cwnd     uint32
	Ssthresh uint32
}

func snapshot(cc congestionControl) ccState {
	return ccState{Cwnd: cc.cwnd, Ssthresh: cc.ssthresh}
}

func TestCongestionSlowStart(t *testing.T) {
	cc := newCongestionControl(MSS, InitCwnd, InitSsthresh)
	cc.startRound()
	cc.onAck()
	cc.onAck()
	// 4200 -> 5600 -> 7000, both below ssthresh 8192
	if diff := cmp.Diff(ccState{Cwnd: 7000, Ssthresh: 8192}, snapshot(cc)); diff != "" {
		t.Errorf("slow start mismatch (-want +got):\n%s", diff)
	}

	// 7000 -> 8400 crosses ssthresh, after which growth is one MSS per round
	cc.onAck()
	cc.onAck()
	cc.onAck()
	if diff := cmp.Diff(ccState{Cwnd: 9800, Ssthresh: 8192}, snapshot(cc)); diff != "" {
		t.Errorf("congestion avoidance mismatch (-want +got):\n%s", diff)
	}
	cc.startRound()
	cc.onAck()
	cc.onAck()
	if cc.cwnd != 11200 {
		t.Errorf("cwnd = %d after a new round, expected 11200", cc.cwnd)
	}
}

func TestCongestionTimeout(t *testing.T) {
	testCases := []struct {
		name     string
		cwnd     uint32
		expected ccState
	}{
		{name: "initial", cwnd: InitCwnd, expected: ccState{Cwnd: 1400, Ssthresh: 2100}},
		{name: "small", cwnd: 1000, expected: ccState{Cwnd: 500, Ssthresh: 500}},
		{name: "tiny", cwnd: 1, expected: ccState{Cwnd: 1, Ssthresh: 1}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cc := newCongestionControl(MSS, tc.cwnd, InitSsthresh)
			cc.onTimeout()
			if diff := cmp.Diff(tc.expected, snapshot(cc)); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCongestionDuplicates(t *testing.T) {
	testCases := []struct {
		name     string
		cwnd     uint32
		expected ccState
	}{
		{name: "initial", cwnd: InitCwnd, expected: ccState{Cwnd: 2101, Ssthresh: 2100}},
		{name: "one", cwnd: 1, expected: ccState{Cwnd: 1, Ssthresh: 1}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cc := newCongestionControl(MSS, tc.cwnd, InitSsthresh)
			cc.onDuplicates()
			if diff := cmp.Diff(tc.expected, snapshot(cc)); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCongestionNeverZero(t *testing.T) {
	cc := newCongestionControl(MSS, 0, 0)
	for i := 0; i < 10; i++ {
		cc.onTimeout()
		cc.onDuplicates()
		if cc.cwnd == 0 || cc.ssthresh == 0 {
			t.Fatalf("window collapsed to zero: %+v", snapshot(cc))
		}
	}
}

func TestRetrier(t *testing.T) {
	r := newRetrier(2)
	if !r.fail() || !r.fail() {
		t.Fatalf("first two failures should be allowed")
	}
	if r.fail() {
		t.Errorf("third failure should exhaust the retrier")
	}
	if r.attempts() != 3 {
		t.Errorf("attempts = %d, expected 3", r.attempts())
	}
	r.progress()
	if r.attempts() != 0 || !r.fail() {
		t.Errorf("progress should reset the failure count")
	}

	if r := newRetrier(0); !r.fail() {
		t.Errorf("a retrier always allows at least one failure")
	}
}
