package common

import (
	"bytes"
	"fmt"
	"strconv"
	s "strings"
	"unicode"
)

var castleMask [64]int

func init() {
	for i := range castleMask {
		castleMask[i] = WhiteKingSide | WhiteQueenSide | BlackKingSide | BlackQueenSide
	}
	castleMask[SquareA1] &^= WhiteQueenSide
	castleMask[SquareE1] &^= WhiteQueenSide | WhiteKingSide
	castleMask[SquareH1] &^= WhiteKingSide
	castleMask[SquareA8] &^= BlackQueenSide
	castleMask[SquareE8] &^= BlackQueenSide | BlackKingSide
	castleMask[SquareH8] &^= BlackKingSide
}

func parsePiece(ch rune) (piece int, side bool, ok bool) {
	side = unicode.IsUpper(ch)
	var i = s.Index("pnbrqk", string(unicode.ToLower(ch)))
	if i < 0 {
		return Empty, false, false
	}
	return i + Pawn, side, true
}

func pieceToChar(piece int, side bool) string {
	var result = string("pnbrqk"[piece-Pawn])
	if side {
		result = s.ToUpper(result)
	}
	return result
}

func NewPositionFromFEN(fen string) (Position, error) {
	var tokens = s.Fields(fen)
	if len(tokens) <= 3 {
		return Position{}, fmt.Errorf("parse fen failed %v", fen)
	}

	var p = Position{
		EpSquare: SquareNone,
		FullMove: 1,
	}

	var i = 0
	for _, ch := range tokens[0] {
		if unicode.IsDigit(ch) {
			var n, _ = strconv.Atoi(string(ch))
			i += n
		} else if unicode.IsLetter(ch) {
			if i >= 64 {
				return Position{}, fmt.Errorf("parse fen failed %v", fen)
			}
			var piece, side, ok = parsePiece(ch)
			if ok {
				xorPiece(&p, piece, side, FlipSquare(i))
			}
			i++
		}
	}

	p.WhiteMove = tokens[1] == "w"

	var sCastleRights = tokens[2]
	if s.Contains(sCastleRights, "K") {
		p.CastleRights |= WhiteKingSide
	}
	if s.Contains(sCastleRights, "Q") {
		p.CastleRights |= WhiteQueenSide
	}
	if s.Contains(sCastleRights, "k") {
		p.CastleRights |= BlackKingSide
	}
	if s.Contains(sCastleRights, "q") {
		p.CastleRights |= BlackQueenSide
	}

	var ep = ParseSquare(tokens[3])
	if ep != SquareNone && p.epCapturePossible(ep) {
		p.EpSquare = ep
	}

	if len(tokens) > 4 {
		p.Rule50, _ = strconv.Atoi(tokens[4])
	}
	if len(tokens) > 5 {
		if fullmove, err := strconv.Atoi(tokens[5]); err == nil && fullmove >= 1 {
			p.FullMove = fullmove
		}
	}

	if !p.isLegal() {
		return Position{}, fmt.Errorf("parse fen failed %v", fen)
	}

	p.Key = p.computeKey()
	p.Checkers = p.computeCheckers()
	return p, nil
}

// epCapturePossible reports whether a pawn of the side to move attacks the
// en-passant target square. The square is only recorded (and hashed) when
// the capture can actually happen, so transpositions hash identically.
func (p *Position) epCapturePossible(ep int) bool {
	return (PawnAttacks(ep, !p.WhiteMove) & p.Pawns & p.piecesByColor(p.WhiteMove)) != 0
}

func (p *Position) String() string {
	var sb bytes.Buffer

	var emptyCount = 0
	for i := 0; i < 64; i++ {
		var sq = FlipSquare(i)
		var piece = p.WhatPiece(sq)
		if piece == Empty {
			emptyCount++
		} else {
			if emptyCount != 0 {
				sb.WriteString(strconv.Itoa(emptyCount))
				emptyCount = 0
			}
			var pieceSide = (p.White & SquareMask[sq]) != 0
			sb.WriteString(pieceToChar(piece, pieceSide))
		}

		if File(sq) == FileH {
			if emptyCount != 0 {
				sb.WriteString(strconv.Itoa(emptyCount))
				emptyCount = 0
			}
			if Rank(sq) != Rank1 {
				sb.WriteString("/")
			}
		}
	}
	sb.WriteString(" ")

	if p.WhiteMove {
		sb.WriteString("w")
	} else {
		sb.WriteString("b")
	}
	sb.WriteString(" ")

	if p.CastleRights == 0 {
		sb.WriteString("-")
	} else {
		if (p.CastleRights & WhiteKingSide) != 0 {
			sb.WriteString("K")
		}
		if (p.CastleRights & WhiteQueenSide) != 0 {
			sb.WriteString("Q")
		}
		if (p.CastleRights & BlackKingSide) != 0 {
			sb.WriteString("k")
		}
		if (p.CastleRights & BlackQueenSide) != 0 {
			sb.WriteString("q")
		}
	}
	sb.WriteString(" ")

	if p.EpSquare == SquareNone {
		sb.WriteString("-")
	} else {
		sb.WriteString(SquareName(p.EpSquare))
	}

	sb.WriteString(" ")
	sb.WriteString(strconv.Itoa(p.Rule50))
	sb.WriteString(" ")
	sb.WriteString(strconv.Itoa(p.FullMove))

	return sb.String()
}

func (p *Position) WhatPiece(sq int) int {
	return int(p.board[sq]) >> 1
}

func (p *Position) GetPieceTypeAndSide(sq int) (piece int, side bool) {
	var code = p.board[sq]
	if code == 0 {
		return Empty, false
	}
	return int(code) >> 1, code&1 == 0
}

func (p *Position) piecesByColor(side bool) uint64 {
	if side {
		return p.White
	}
	return p.Black
}

func (p *Position) PiecesByColor(side bool) uint64 {
	return p.piecesByColor(side)
}

func (p *Position) AllPieces() uint64 {
	return p.White | p.Black
}

func (p *Position) IsCheck() bool {
	return p.Checkers != 0
}

func xorPiece(p *Position, piece int, side bool, square int) {
	var b = SquareMask[square]
	if side {
		p.White ^= b
	} else {
		p.Black ^= b
	}
	switch piece {
	case Pawn:
		p.Pawns ^= b
	case Knight:
		p.Knights ^= b
	case Bishop:
		p.Bishops ^= b
	case Rook:
		p.Rooks ^= b
	case Queen:
		p.Queens ^= b
	case King:
		p.Kings ^= b
	}
	if p.board[square] != 0 {
		p.board[square] = 0
	} else {
		p.board[square] = int8(MakePiece(piece, side))
	}
	p.Key ^= PieceSquareKey(piece, side, square)
}

func movePiece(p *Position, piece int, side bool, from, to int) {
	var b = SquareMask[from] ^ SquareMask[to]
	if side {
		p.White ^= b
	} else {
		p.Black ^= b
	}
	switch piece {
	case Pawn:
		p.Pawns ^= b
	case Knight:
		p.Knights ^= b
	case Bishop:
		p.Bishops ^= b
	case Rook:
		p.Rooks ^= b
	case Queen:
		p.Queens ^= b
	case King:
		p.Kings ^= b
	}
	p.board[to] = p.board[from]
	p.board[from] = 0
	p.Key ^= PieceSquareKey(piece, side, from) ^ PieceSquareKey(piece, side, to)
}

// MakeMove applies move in place, filling u first so UnmakeMove can restore
// the position exactly. Returns false (and leaves the position unchanged)
// when the move would leave the mover's king attacked.
func (p *Position) MakeMove(move Move, u *UndoState) bool {
	u.CastleRights = p.CastleRights
	u.EpSquare = p.EpSquare
	u.Rule50 = p.Rule50
	u.FullMove = p.FullMove
	u.Captured = move.CapturedPiece()
	u.Key = p.Key
	u.Checkers = p.Checkers

	var from = move.From()
	var to = move.To()
	var movingPiece = move.MovingPiece()
	var capturedPiece = move.CapturedPiece()
	var me = p.WhiteMove

	if movingPiece == Empty || p.board[from] == 0 {
		return false
	}

	p.Key ^= sideKey

	var newRights = p.CastleRights & castleMask[from] & castleMask[to]
	p.Key ^= castlingKey[p.CastleRights^newRights]
	p.CastleRights = newRights

	if movingPiece == Pawn || capturedPiece != Empty {
		p.Rule50 = 0
	} else {
		p.Rule50++
	}

	if p.EpSquare != SquareNone {
		p.Key ^= enpassantKey[File(p.EpSquare)]
		p.EpSquare = SquareNone
	}

	if capturedPiece != Empty {
		if capturedPiece == Pawn && to == u.EpSquare {
			xorPiece(p, Pawn, !me, to+let(me, -8, 8))
		} else {
			xorPiece(p, capturedPiece, !me, to)
		}
	}

	movePiece(p, movingPiece, me, from, to)

	if movingPiece == Pawn {
		if me {
			if to == from+16 && p.epCapturePossibleBy(from+8, !me) {
				p.EpSquare = from + 8
				p.Key ^= enpassantKey[File(from+8)]
			}
			if Rank(to) == Rank8 {
				xorPiece(p, Pawn, true, to)
				xorPiece(p, move.Promotion(), true, to)
			}
		} else {
			if to == from-16 && p.epCapturePossibleBy(from-8, !me) {
				p.EpSquare = from - 8
				p.Key ^= enpassantKey[File(from-8)]
			}
			if Rank(to) == Rank1 {
				xorPiece(p, Pawn, false, to)
				xorPiece(p, move.Promotion(), false, to)
			}
		}
	} else if movingPiece == King {
		if me {
			if from == SquareE1 && to == SquareG1 {
				movePiece(p, Rook, true, SquareH1, SquareF1)
			}
			if from == SquareE1 && to == SquareC1 {
				movePiece(p, Rook, true, SquareA1, SquareD1)
			}
		} else {
			if from == SquareE8 && to == SquareG8 {
				movePiece(p, Rook, false, SquareH8, SquareF8)
			}
			if from == SquareE8 && to == SquareC8 {
				movePiece(p, Rook, false, SquareA8, SquareD8)
			}
		}
	}

	if !me {
		p.FullMove++
	}
	p.WhiteMove = !me

	if kings := p.Kings & p.piecesByColor(me); kings != 0 &&
		p.isAttackedBySide(FirstOne(kings), !me) {
		p.UnmakeMove(move, u)
		return false
	}

	p.Checkers = p.computeCheckers()
	return true
}

// epCapturePossibleBy reports whether a pawn of side can capture on ep.
func (p *Position) epCapturePossibleBy(ep int, side bool) bool {
	return (PawnAttacks(ep, !side) & p.Pawns & p.piecesByColor(side)) != 0
}

// UnmakeMove is the strict inverse of MakeMove given the same UndoState.
func (p *Position) UnmakeMove(move Move, u *UndoState) {
	var from = move.From()
	var to = move.To()
	var movingPiece = move.MovingPiece()
	var capturedPiece = u.Captured
	var me = !p.WhiteMove

	if move.Promotion() != Empty {
		xorPiece(p, move.Promotion(), me, to)
		xorPiece(p, Pawn, me, to)
	}

	movePiece(p, movingPiece, me, to, from)

	if capturedPiece != Empty {
		if capturedPiece == Pawn && to == u.EpSquare {
			xorPiece(p, Pawn, !me, to+let(me, -8, 8))
		} else {
			xorPiece(p, capturedPiece, !me, to)
		}
	}

	if movingPiece == King {
		if me {
			if from == SquareE1 && to == SquareG1 {
				movePiece(p, Rook, true, SquareF1, SquareH1)
			}
			if from == SquareE1 && to == SquareC1 {
				movePiece(p, Rook, true, SquareD1, SquareA1)
			}
		} else {
			if from == SquareE8 && to == SquareG8 {
				movePiece(p, Rook, false, SquareF8, SquareH8)
			}
			if from == SquareE8 && to == SquareC8 {
				movePiece(p, Rook, false, SquareD8, SquareA8)
			}
		}
	}

	p.WhiteMove = me
	p.CastleRights = u.CastleRights
	p.EpSquare = u.EpSquare
	p.Rule50 = u.Rule50
	p.FullMove = u.FullMove
	p.Key = u.Key
	p.Checkers = u.Checkers
}

// MakeNullMove flips the side to move without touching pieces. Callers must
// not use it while in check.
func (p *Position) MakeNullMove(u *UndoState) {
	u.CastleRights = p.CastleRights
	u.EpSquare = p.EpSquare
	u.Rule50 = p.Rule50
	u.FullMove = p.FullMove
	u.Captured = Empty
	u.Key = p.Key
	u.Checkers = p.Checkers

	p.WhiteMove = !p.WhiteMove
	p.Key ^= sideKey
	p.Rule50++
	if p.EpSquare != SquareNone {
		p.Key ^= enpassantKey[File(p.EpSquare)]
		p.EpSquare = SquareNone
	}
	p.Checkers = 0
}

func (p *Position) UnmakeNullMove(u *UndoState) {
	p.WhiteMove = !p.WhiteMove
	p.CastleRights = u.CastleRights
	p.EpSquare = u.EpSquare
	p.Rule50 = u.Rule50
	p.FullMove = u.FullMove
	p.Key = u.Key
	p.Checkers = u.Checkers
}

func (p *Position) isAttackedBySide(sq int, side bool) bool {
	var enemy = p.piecesByColor(side)
	if (PawnAttacks(sq, !side) & p.Pawns & enemy) != 0 {
		return true
	}
	if (KnightAttacks[sq] & p.Knights & enemy) != 0 {
		return true
	}
	if (KingAttacks[sq] & p.Kings & enemy) != 0 {
		return true
	}
	var allPieces = p.White | p.Black
	if (BishopAttacks(sq, allPieces) & (p.Bishops | p.Queens) & enemy) != 0 {
		return true
	}
	if (RookAttacks(sq, allPieces) & (p.Rooks | p.Queens) & enemy) != 0 {
		return true
	}
	return false
}

func (p *Position) attackersTo(sq int) uint64 {
	var occ = p.White | p.Black
	return (blackPawnAttacks[sq] & p.Pawns & p.White) |
		(whitePawnAttacks[sq] & p.Pawns & p.Black) |
		(KnightAttacks[sq] & p.Knights) |
		(BishopAttacks(sq, occ) & (p.Bishops | p.Queens)) |
		(RookAttacks(sq, occ) & (p.Rooks | p.Queens)) |
		(KingAttacks[sq] & p.Kings)
}

func (p *Position) computeCheckers() uint64 {
	var kings = p.Kings & p.piecesByColor(p.WhiteMove)
	if kings == 0 {
		return 0
	}
	return p.attackersTo(FirstOne(kings)) & p.piecesByColor(!p.WhiteMove)
}

func (p *Position) isLegal() bool {
	var kings = p.Kings & p.piecesByColor(!p.WhiteMove)
	if kings == 0 {
		return true
	}
	return !p.isAttackedBySide(FirstOne(kings), p.WhiteMove)
}

func (p *Position) computeKey() uint64 {
	var result = uint64(0)
	if p.WhiteMove {
		result ^= sideKey
	}
	result ^= castlingKey[p.CastleRights]
	if p.EpSquare != SquareNone {
		result ^= enpassantKey[File(p.EpSquare)]
	}
	for sq := 0; sq < 64; sq++ {
		var piece, side = p.GetPieceTypeAndSide(sq)
		if piece != Empty {
			result ^= PieceSquareKey(piece, side, sq)
		}
	}
	return result
}
