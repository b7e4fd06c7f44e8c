package common

import "testing"

//https://www.chessprogramming.org/Perft_Results
func TestPerftInitial(t *testing.T) {
	var tests = []struct {
		depth int
		nodes int
	}{
		{1, 20},
		{2, 400},
		{3, 8902},
		{4, 197281},
		{5, 4865609},
		{6, 119060324},
	}
	var p, err = NewPositionFromFEN(InitialPositionFen)
	if err != nil {
		t.Fatal(err)
	}
	for _, test := range tests {
		if testing.Short() && test.depth > 5 {
			break
		}
		var nodes = Perft(&p, test.depth)
		if nodes != test.nodes {
			t.Error(test.depth, test.nodes, nodes)
		}
	}
}

func TestPerft(t *testing.T) {
	var tests = []struct {
		fen   string
		depth int
		nodes int
	}{
		{"rnbq1k1r/pppp1ppp/5n2/4p3/1bB1P3/5N2/PPPP1PPP/RNBQ1RK1 w - - 0 1", 1, 29},
		{"rnbq1k1r/pppp1ppp/5n2/4p3/1bB1P3/5N2/PPPP1PPP/RNBQ1RK1 w - - 0 1", 2, 956},
		{"rnbq1k1r/pppp1ppp/5n2/4p3/1bB1P3/5N2/PPPP1PPP/RNBQ1RK1 w - - 0 1", 3, 28900},
		{"rnbq1k1r/pppp1ppp/5n2/4p3/1bB1P3/5N2/PPPP1PPP/RNBQ1RK1 w - - 0 1", 4, 951029},
		{"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq -", 4, 4085603},
		{"8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - -", 5, 674624},
		{"r3k2r/Pppp1ppp/1b3nbN/nP6/BBP1P3/q4N2/Pp1P2PP/R2Q1RK1 w kq - 0 1", 4, 422333},
		{"rnbq1k1r/pp1Pbppp/2p5/8/2B5/8/PPP1NnPP/RNBQK2R w KQ - 1 8", 4, 2103487},
		{"r4rk1/1pp1qppp/p1np1n2/2b1p1B1/2B1P1b1/P1NP1N2/1PP1QPPP/R4RK1 w - - 0 10", 4, 3894594},
	}
	for i, test := range tests {
		var p, err = NewPositionFromFEN(test.fen)
		if err != nil {
			t.Fatal(i, err)
		}
		var nodes = Perft(&p, test.depth)
		if nodes != test.nodes {
			t.Error(i, test, nodes)
		}
	}
}

func BenchmarkPerft(b *testing.B) {
	var p, _ = NewPositionFromFEN(InitialPositionFen)
	for n := 0; n < b.N; n++ {
		Perft(&p, 4)
	}
}
