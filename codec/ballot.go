package codec

import (
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// base32Alphabet maps non-zero write-in byte-slot values to characters
// when a contest configures WriteInBase=32: value v is base32Alphabet[v-1],
// since value 0 is always the terminator. Restricting base-32 write-ins to this
// alphabet (rather than attempting to pack arbitrary UTF-8 into 5 bits)
// is this module's resolution of the format's "base=32" option.
const base32Alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXY"

// ToRawBallot builds the (bases, values) vectors for a contest's intent:
// one invalid-flag slot, one selection slot per candidate, then write-in
// byte slots for every write-in candidate.
func (c ContestPolicy) ToRawBallot(intent DecodedVoteContest) (RawBallot, error) {
	bases := []uint64{2}
	values := []uint64{0}
	if intent.IsExplicitInvalid {
		values[0] = 1
	}

	byCandidate := make(map[string]Choice, len(intent.Choices))
	for _, ch := range intent.Choices {
		byCandidate[ch.CandidateID] = ch
	}

	selBase := c.selectionBase()
	var writeInQueue []CandidatePolicy
	for _, cand := range c.Candidates {
		ch, ok := byCandidate[cand.CandidateID]
		selected := int64(-1)
		if ok {
			selected = ch.Selected
		}
		bases = append(bases, selBase)
		values = append(values, uint64(selected+1))
		if cand.WriteIn && c.WriteInBase != 0 {
			writeInQueue = append(writeInQueue, cand)
		}
	}

	for _, cand := range writeInQueue {
		ch := byCandidate[cand.CandidateID]
		text := ""
		if ch.WriteInText != nil {
			text = norm.NFC.String(*ch.WriteInText)
		}
		slotBases, slotValues, err := encodeWriteIn(text, uint64(c.WriteInBase), c.WriteInSlotCount)
		if err != nil {
			return RawBallot{}, err
		}
		bases = append(bases, slotBases...)
		values = append(values, slotValues...)
	}

	return RawBallot{Bases: bases, Values: values}, nil
}

// FromRawBallot reverses ToRawBallot, returning the best-effort decoded
// intent alongside any ValidityErrors encountered. A malformed write-in
// section still yields a fully decoded selection section.
func (c ContestPolicy) FromRawBallot(raw RawBallot) DecodedVoteContest {
	out := DecodedVoteContest{ContestID: c.ContestID}
	if len(raw.Bases) != len(raw.Values) {
		out.Errors = append(out.Errors, ValidityError{Class: ClassEncoding, Message: ErrMismatchedLengths.Error()})
		return out
	}
	if len(raw.Values) == 0 {
		out.Errors = append(out.Errors, ValidityError{Class: ClassEncoding, Message: "empty raw ballot"})
		return out
	}

	out.IsExplicitInvalid = raw.Values[0] == 1
	if out.IsExplicitInvalid && !c.AllowExplicitInvalid {
		out.Errors = append(out.Errors, ValidityError{Class: ClassExplicit, Message: "explicit-invalid flag set but forbidden by policy"})
	}

	idx := 1
	wIdx := 1 + len(c.Candidates) // write-in slots follow every selection slot
	selectedCount := 0
	for _, cand := range c.Candidates {
		if idx >= len(raw.Values) {
			out.Errors = append(out.Errors, ValidityError{Class: ClassEncoding, Message: "raw ballot truncated before all candidates decoded"})
			break
		}
		v := raw.Values[idx]
		idx++
		selected := int64(v) - 1
		if selected >= 0 {
			selectedCount++
		}
		choice := Choice{CandidateID: cand.CandidateID, Selected: selected}

		if cand.WriteIn && c.WriteInBase != 0 {
			if wIdx+c.WriteInSlotCount > len(raw.Values) {
				out.Errors = append(out.Errors, ValidityError{Class: ClassEncoding, Message: ErrWriteInNotTerminated.Error()})
				out.Choices = append(out.Choices, choice)
				continue
			}
			slot := raw.Values[wIdx : wIdx+c.WriteInSlotCount]
			wIdx += c.WriteInSlotCount
			text, err := decodeWriteIn(slot, uint64(c.WriteInBase))
			if err != nil {
				out.Errors = append(out.Errors, ValidityError{Class: ClassEncoding, Message: err.Error()})
			} else {
				choice.WriteInText = &text
			}
		}
		out.Choices = append(out.Choices, choice)
	}

	if selectedCount < c.MinSelections {
		out.Errors = append(out.Errors, ValidityError{Class: ClassImplicit, Message: "too few selections"})
	}
	if c.MaxSelections > 0 && selectedCount > c.MaxSelections {
		out.Errors = append(out.Errors, ValidityError{Class: ClassImplicit, Message: "too many selections"})
	}
	if selectedCount == 0 && c.MinSelections > 0 {
		out.Alerts = append(out.Alerts, Alert{Level: c.AlertPolicy, Message: "blank vote"})
	}

	return out
}

// encodeWriteIn packs text into slotCount slots of the given base,
// zero-terminated, returning a constant-length bases/values pair so every
// ballot for this contest has the same total width regardless of the
// actual write-in length.
func encodeWriteIn(text string, base uint64, slotCount int) ([]uint64, []uint64, error) {
	bases := make([]uint64, slotCount)
	values := make([]uint64, slotCount)
	for i := range bases {
		bases[i] = base
	}

	var symbols []uint64
	if base == 256 {
		for i := 0; i < len(text); i++ {
			symbols = append(symbols, uint64(text[i]))
		}
	} else {
		for _, r := range text {
			v, err := runeToBase32(r)
			if err != nil {
				return nil, nil, err
			}
			symbols = append(symbols, v)
		}
	}

	if len(symbols) >= slotCount {
		return nil, nil, ErrWriteInNotTerminated
	}
	for i, s := range symbols {
		if s == 0 {
			return nil, nil, ErrWriteInNotTerminated
		}
		values[i] = s
	}
	// remaining slots, starting at len(symbols), are zero (terminator +
	// padding).
	return bases, values, nil
}

// decodeWriteIn reverses encodeWriteIn: reads symbols until the first
// zero terminator.
func decodeWriteIn(slot []uint64, base uint64) (string, error) {
	var raw []byte
	for _, v := range slot {
		if v == 0 {
			if base == 256 {
				if !utf8.Valid(raw) {
					return "", ErrInvalidUTF8
				}
				return string(raw), nil
			}
			var sb []rune
			for _, b := range raw {
				sb = append(sb, rune(b))
			}
			return string(sb), nil
		}
		if base == 256 {
			raw = append(raw, byte(v))
		} else {
			r, err := base32ToRune(v)
			if err != nil {
				return "", err
			}
			raw = append(raw, byte(r))
		}
	}
	return "", ErrWriteInNotTerminated
}

func runeToBase32(r rune) (uint64, error) {
	for i := 0; i < len(base32Alphabet); i++ {
		if rune(base32Alphabet[i]) == r {
			return uint64(i + 1), nil
		}
	}
	return 0, ErrInvalidUTF8
}

func base32ToRune(v uint64) (rune, error) {
	idx := int(v) - 1
	if idx < 0 || idx >= len(base32Alphabet) {
		return 0, ErrInvalidUTF8
	}
	return rune(base32Alphabet[idx]), nil
}
