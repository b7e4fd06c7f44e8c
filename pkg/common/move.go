package common

// Move packs from, to, moving piece, captured piece and promotion into an
// int32. MoveEmpty is the reserved null sentinel; generators never emit it.
type Move int32

const MoveEmpty = Move(0)

func makeMove(from, to, movingPiece, capturedPiece int) Move {
	return Move(from ^ (to << 6) ^ (movingPiece << 12) ^ (capturedPiece << 15))
}

func makePawnMove(from, to, capturedPiece, promotion int) Move {
	return Move(from ^ (to << 6) ^ (Pawn << 12) ^ (capturedPiece << 15) ^ (promotion << 18))
}

func (m Move) From() int {
	return int(m & 63)
}

func (m Move) To() int {
	return int((m >> 6) & 63)
}

func (m Move) MovingPiece() int {
	return int((m >> 12) & 7)
}

func (m Move) CapturedPiece() int {
	return int((m >> 15) & 7)
}

func (m Move) Promotion() int {
	return int((m >> 18) & 7)
}

func (m Move) IsCapture() bool {
	return m.CapturedPiece() != Empty
}

func (m Move) IsPromotion() bool {
	return m.Promotion() != Empty
}

func (m Move) IsCastle() bool {
	return m.MovingPiece() == King && FileDistance(m.From(), m.To()) == 2
}

func (m Move) IsDoublePush() bool {
	return m.MovingPiece() == Pawn && RankDistance(m.From(), m.To()) == 2
}

// IsEnPassant needs the position the move is made from: the pawn capture
// lands on the en-passant square while the victim sits behind it.
func (p *Position) IsEnPassant(m Move) bool {
	return m.MovingPiece() == Pawn && m.CapturedPiece() == Pawn &&
		m.To() == p.EpSquare && p.EpSquare != SquareNone
}

func (m Move) String() string {
	if m == MoveEmpty {
		return "0000"
	}
	var sPromotion = ""
	if m.Promotion() != Empty {
		sPromotion = string("nbrq"[m.Promotion()-Knight])
	}
	return SquareName(m.From()) + SquareName(m.To()) + sPromotion
}
