package reassemble

import "testing"

func byteLen(b []byte) uint64 { return uint64(len(b)) }

func TestInOrderPacketModeIsIdentity(t *testing.T) {
	r := New[int](16, 8, PacketMode, nil)

	var got []int
	for seq := 0; seq < 20; seq++ {
		out, err := r.Process(seq*2, uint64(seq))
		if err != nil {
			t.Fatalf("process: %v", err)
		}
		for _, e := range out {
			if e.Skipped {
				t.Fatalf("unexpected skip at seq %d", seq)
			}
			got = append(got, *e.Item)
		}
	}

	if len(got) != 20 {
		t.Fatalf("expected 20 emissions, got %d", len(got))
	}
	for i, v := range got {
		if v != i*2 {
			t.Fatalf("index %d: got %d want %d", i, v, i*2)
		}
	}
}

func TestOutOfOrderWithinWindowReordersLosslessly(t *testing.T) {
	r := New[int](16, 8, PacketMode, nil)
	order := []int{0, 2, 1, 4, 3, 5}

	var got []int
	for _, seq := range order {
		out, err := r.Process(seq*10, uint64(seq))
		if err != nil {
			t.Fatalf("process: %v", err)
		}
		for _, e := range out {
			if e.Skipped {
				t.Fatalf("unexpected skip, seq=%d", seq)
			}
			got = append(got, *e.Item)
		}
	}

	want := []int{0, 10, 20, 30, 40, 50}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestWindowExactlyKNoSkip(t *testing.T) {
	// K=4: seq 0 sets expected and is emitted; 2..5 are then held while 1
	// is missing, filling the window exactly.
	r := New[int](16, 4, PacketMode, nil)
	if _, err := r.Process(0, 0); err != nil {
		t.Fatal(err)
	}

	var emissions []Emission[int]
	for _, seq := range []int{2, 3, 4, 5} {
		out, err := r.Process(seq, uint64(seq))
		if err != nil {
			t.Fatal(err)
		}
		emissions = append(emissions, out...)
	}
	if len(emissions) != 0 {
		t.Fatalf("expected nothing emitted yet (waiting on seq 1), got %v", emissions)
	}
	if r.Pending() != 4 {
		t.Fatalf("expected 4 held, got %d", r.Pending())
	}
}

func TestWindowKPlus1ForcesOneSkip(t *testing.T) {
	r := New[int](16, 4, PacketMode, nil)

	// expected starts at 1 (first call sets expected). Hold 3,4,5,6 while 2
	// is missing (4 items = window).
	if _, err := r.Process(1, 1); err != nil {
		t.Fatal(err)
	}
	// consume seq 1 immediately (matches expected), now expected=2
	for _, seq := range []int{3, 4, 5, 6} {
		out, err := r.Process(seq, uint64(seq))
		if err != nil {
			t.Fatal(err)
		}
		if len(out) != 0 {
			t.Fatalf("unexpected emission at seq %d: %v", seq, out)
		}
	}
	if r.Pending() != 4 {
		t.Fatalf("expected 4 held before overflow, got %d", r.Pending())
	}

	// Fifth held item (seq=7) exceeds window K=4, forcing progress.
	out, err := r.Process(7, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) == 0 {
		t.Fatalf("expected forced emission")
	}
	if !out[0].Skipped {
		t.Fatalf("expected first forced emission to be flagged skipped")
	}
	if *out[0].Item != 3 {
		t.Fatalf("expected earliest held (seq 3) to be forced out first, got %d", *out[0].Item)
	}
}

func TestSequenceWraparoundAdmitsWithoutGap(t *testing.T) {
	r := New[int](16, 8, PacketMode, nil)

	seqs := []uint64{0xFFFE, 0xFFFF, 0x0000, 0x0001}
	var got []Emission[int]
	for _, s := range seqs {
		out, err := r.Process(int(s), s)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, out...)
	}

	if len(got) != len(seqs) {
		t.Fatalf("expected %d emissions, got %d: %v", len(seqs), len(got), got)
	}
	for _, e := range got {
		if e.Skipped {
			t.Fatalf("unexpected skip across wraparound: %v", got)
		}
	}
}

func TestFinalizeDrainsHeldInAscendingOrderAndFlagsGaps(t *testing.T) {
	r := New[int](16, 8, PacketMode, nil)

	if _, err := r.Process(0, 0); err != nil {
		t.Fatal(err)
	}
	// hold 2 and 3, never deliver seq 1
	if _, err := r.Process(20, 2); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Process(30, 3); err != nil {
		t.Fatal(err)
	}

	out := r.Finalize()
	if len(out) != 3 { // seq2(skipped), seq3, sentinel
		t.Fatalf("expected 3 emissions (2 drained + sentinel), got %d: %v", len(out), out)
	}
	if !out[0].Skipped || *out[0].Item != 20 {
		t.Fatalf("expected skipped seq-2 item first, got %+v", out[0])
	}
	if out[1].Skipped || *out[1].Item != 30 {
		t.Fatalf("expected non-skipped seq-3 item second, got %+v", out[1])
	}
	if out[2].Item != nil || out[2].Skipped {
		t.Fatalf("expected end-of-stream sentinel last, got %+v", out[2])
	}

	if _, err := r.Process(99, 99); err != ErrFinalized {
		t.Fatalf("expected ErrFinalized after finalize, got %v", err)
	}
}

func TestDataModeAdvancesByLength(t *testing.T) {
	r := New[[]byte](32, 30, DataMode, byteLen)

	a := []byte("hello ") // len 6
	b := []byte("world")  // len 5

	out, err := r.Process(a, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || *out[0].Item == nil {
		t.Fatalf("expected immediate emission of a")
	}

	out, err = r.Process(b, 106)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || string(*out[0].Item) != "world" {
		t.Fatalf("expected b admitted at seq 106, got %v", out)
	}
}

func TestStaleBehindSequenceIsDroppedSilently(t *testing.T) {
	r := New[int](16, 8, PacketMode, nil)

	if _, err := r.Process(1, 5); err != nil {
		t.Fatal(err)
	}
	// expected is now 6. Replay an old sequence (1) which is "behind".
	out, err := r.Process(999, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Fatalf("expected stale packet dropped silently, got %v", out)
	}
}
