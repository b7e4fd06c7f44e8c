package common

import "strings"

// MoveToSAN writes mv in standard algebraic notation, with a "+"/"#" suffix
// when the move gives check or mate. ml is the legal move list of p, used
// for disambiguation.
func MoveToSAN(p *Position, ml []Move, mv Move) string {
	const pieceNames = "NBRQK"
	var san string
	if mv == whiteKingSideCastle || mv == blackKingSideCastle {
		san = "O-O"
	} else if mv == whiteQueenSideCastle || mv == blackQueenSideCastle {
		san = "O-O-O"
	} else {
		var strPiece, strCapture, strFrom, strTo, strPromotion string
		if mv.MovingPiece() != Pawn {
			strPiece = string(pieceNames[mv.MovingPiece()-Knight])
		}
		strTo = SquareName(mv.To())
		if mv.CapturedPiece() != Empty {
			strCapture = "x"
			if mv.MovingPiece() == Pawn {
				strFrom = SquareName(mv.From())[:1]
			}
		}
		if mv.Promotion() != Empty {
			strPromotion = "=" + string(pieceNames[mv.Promotion()-Knight])
		}
		var ambiguity = false
		var uniqCol = true
		var uniqRow = true
		for _, mv1 := range ml {
			if mv1.From() == mv.From() {
				continue
			}
			if mv1.To() != mv.To() {
				continue
			}
			if mv1.MovingPiece() != mv.MovingPiece() {
				continue
			}
			ambiguity = true
			if File(mv1.From()) == File(mv.From()) {
				uniqCol = false
			}
			if Rank(mv1.From()) == Rank(mv.From()) {
				uniqRow = false
			}
		}
		if ambiguity {
			if uniqCol {
				strFrom = SquareName(mv.From())[:1]
			} else if uniqRow {
				strFrom = SquareName(mv.From())[1:2]
			} else {
				strFrom = SquareName(mv.From())
			}
		}
		san = strPiece + strFrom + strCapture + strTo + strPromotion
	}

	var u UndoState
	if p.MakeMove(mv, &u) {
		if p.IsCheck() {
			if len(GenerateLegalMoves(p)) == 0 {
				san += "#"
			} else {
				san += "+"
			}
		}
		p.UnmakeMove(mv, &u)
	}
	return san
}

// ParseMoveSAN finds the legal move matching san, ignoring check and
// annotation suffixes. Returns MoveEmpty when nothing matches.
func ParseMoveSAN(p *Position, san string) Move {
	var index = strings.IndexAny(san, "+#?!")
	if index >= 0 {
		san = san[:index]
	}
	var ml = GenerateLegalMoves(p)
	for _, mv := range ml {
		var candidate = MoveToSAN(p, ml, mv)
		if i := strings.IndexAny(candidate, "+#"); i >= 0 {
			candidate = candidate[:i]
		}
		if san == candidate {
			return mv
		}
	}
	return MoveEmpty
}
