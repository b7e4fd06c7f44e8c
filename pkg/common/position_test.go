package common

import "testing"

var testFENs = []string{
	InitialPositionFen,
	"rnbq1k1r/pppp1ppp/5n2/4p3/1bB1P3/5N2/PPPP1PPP/RNBQ1RK1 w - - 0 1",
	"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
	"8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1",
	"r3k2r/Pppp1ppp/1b3nbN/nP6/BBP1P3/q4N2/Pp1P2PP/R2Q1RK1 w kq - 0 1",
	"rnbq1k1r/pp1Pbppp/2p5/8/2B5/8/PPP1NnPP/RNBQK2R w KQ - 1 8",
	"r4rk1/1pp1qppp/p1np1n2/2b1p1B1/2B1P1b1/P1NP1N2/1PP1QPPP/R4RK1 w - - 0 10",
	"4k3/8/8/8/8/8/4P3/4K3 w - - 0 1",
	"rnbqkbnr/ppp1pppp/8/8/3pP3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 3",
}

func TestFenRoundTrip(t *testing.T) {
	for _, fen := range testFENs {
		var p, err = NewPositionFromFEN(fen)
		if err != nil {
			t.Fatal(fen, err)
		}
		if p.String() != fen {
			t.Error(fen, p.String())
		}
	}
}

func TestMakeUnmakeRoundTrip(t *testing.T) {
	for _, fen := range testFENs {
		var p, err = NewPositionFromFEN(fen)
		if err != nil {
			t.Fatal(fen, err)
		}
		var before = p
		var buffer [MaxMoves]Move
		var u UndoState
		for _, m := range GenerateMoves(buffer[:], &p) {
			if !p.MakeMove(m, &u) {
				if p != before {
					t.Fatal(fen, m, "illegal move mutated position")
				}
				continue
			}
			p.UnmakeMove(m, &u)
			if p != before {
				t.Fatal(fen, m, "make/unmake mismatch")
			}
		}
	}
}

func TestZobristFromScratch(t *testing.T) {
	for _, fen := range testFENs {
		var p, err = NewPositionFromFEN(fen)
		if err != nil {
			t.Fatal(fen, err)
		}
		var buffer [MaxMoves]Move
		var u UndoState
		for _, m := range GenerateMoves(buffer[:], &p) {
			if !p.MakeMove(m, &u) {
				continue
			}
			if p.Key != p.computeKey() {
				t.Fatal(fen, m, "incremental key diverged")
			}
			p.UnmakeMove(m, &u)
		}
	}
}

func TestNullMoveRoundTrip(t *testing.T) {
	for _, fen := range testFENs {
		var p, err = NewPositionFromFEN(fen)
		if err != nil {
			t.Fatal(fen, err)
		}
		if p.IsCheck() {
			continue
		}
		var before = p
		var u UndoState
		p.MakeNullMove(&u)
		if p.Key != p.computeKey() {
			t.Fatal(fen, "null move key diverged")
		}
		p.UnmakeNullMove(&u)
		if p != before {
			t.Fatal(fen, "null make/unmake mismatch")
		}
	}
}

// The en-passant square is only recorded when an enemy pawn can actually
// capture, so the two positions below must hash identically after the
// double push transposes.
func TestEnPassantRecordedOnlyWhenCapturable(t *testing.T) {
	var p, err = NewPositionFromFEN(InitialPositionFen)
	if err != nil {
		t.Fatal(err)
	}
	var u UndoState
	var m, ok = p.MakeMoveLAN("e2e4", &u)
	if !ok || m == MoveEmpty {
		t.Fatal("e2e4 rejected")
	}
	if p.EpSquare != SquareNone {
		t.Error("ep square set with no black pawn able to capture")
	}

	p, _ = NewPositionFromFEN("rnbqkbnr/ppp1pppp/8/8/3p4/8/PPPPPPPP/RNBQKBNR w KQkq - 0 3")
	var u2 UndoState
	if _, ok = p.MakeMoveLAN("e2e4", &u2); !ok {
		t.Fatal("e2e4 rejected")
	}
	if p.EpSquare != SquareE3 {
		t.Error("ep square missing with d4 pawn ready to capture")
	}
}

func TestLegalMovesMatchFilter(t *testing.T) {
	for _, fen := range testFENs {
		var p, err = NewPositionFromFEN(fen)
		if err != nil {
			t.Fatal(fen, err)
		}
		var legal = GenerateLegalMoves(&p)
		var buffer [MaxMoves]Move
		var u UndoState
		var filtered []Move
		for _, m := range GenerateMoves(buffer[:], &p) {
			if p.MakeMove(m, &u) {
				p.UnmakeMove(m, &u)
				filtered = append(filtered, m)
			}
		}
		if len(legal) != len(filtered) {
			t.Fatal(fen, "legal move count mismatch")
		}
		for i := range legal {
			if legal[i] != filtered[i] {
				t.Fatal(fen, "legal move set mismatch")
			}
		}
	}
}

func TestBadFen(t *testing.T) {
	var tests = []string{
		"",
		"some text",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR",
		"4k3/8/8/8/8/8/4q3/4K3 b - - 0 1",
	}
	for _, fen := range tests {
		if _, err := NewPositionFromFEN(fen); err == nil {
			t.Error(fen, "expected error")
		}
	}
}
