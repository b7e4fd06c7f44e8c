package common

const (
	WhiteKingSide = 1 << iota
	WhiteQueenSide
	BlackKingSide
	BlackQueenSide
)

const InitialPositionFen = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

const (
	Empty int = iota
	Pawn
	Knight
	Bishop
	Rook
	Queen
	King
)

const MaxMoves = 256

// Position is the authoritative board state. It is mutated in place by
// MakeMove/UnmakeMove; the caller owns the matching UndoState.
type Position struct {
	Pawns, Knights, Bishops, Rooks, Queens, Kings uint64
	White, Black                                  uint64
	Checkers                                      uint64
	board                                         [64]int8
	WhiteMove                                     bool
	CastleRights                                  int
	EpSquare                                      int
	Rule50                                        int
	FullMove                                      int
	Key                                           uint64
}

// UndoState holds the fields MakeMove destroys. Filled by MakeMove before
// any mutation, consumed by UnmakeMove.
type UndoState struct {
	CastleRights int
	EpSquare     int
	Rule50       int
	FullMove     int
	Captured     int
	Key          uint64
	Checkers     uint64
}

type OrderedMove struct {
	Move Move
	Key  int
}

func MakePiece(piece int, side bool) int {
	if side {
		return piece << 1
	}
	return piece<<1 | 1
}

func Min(l, r int) int {
	if l < r {
		return l
	}
	return r
}

func Max(l, r int) int {
	if l > r {
		return l
	}
	return r
}

func let(ok bool, yes, no int) int {
	if ok {
		return yes
	}
	return no
}
