package codec

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func pluralityPolicy() ContestPolicy {
	return ContestPolicy{
		ContestID: "contest-1",
		System:    SystemPlurality,
		Candidates: []CandidatePolicy{
			{CandidateID: "1"}, {CandidateID: "2"}, {CandidateID: "3"},
			{CandidateID: "4"}, {CandidateID: "5"},
		},
		MaxSelections: 1,
	}
}

func TestToRawBallotPluralityMatchesScenario1(t *testing.T) {
	c := qt.New(t)
	policy := pluralityPolicy()
	intent := DecodedVoteContest{
		ContestID: "contest-1",
		Choices: []Choice{
			{CandidateID: "1", Selected: 0},
			{CandidateID: "2", Selected: -1},
			{CandidateID: "3", Selected: -1},
			{CandidateID: "4", Selected: 0},
			{CandidateID: "5", Selected: 0},
		},
	}
	raw, err := policy.ToRawBallot(intent)
	c.Assert(err, qt.IsNil)
	c.Assert(raw.Bases, qt.DeepEquals, []uint64{2, 2, 2, 2, 2, 2})
	c.Assert(raw.Values, qt.DeepEquals, []uint64{0, 1, 0, 0, 1, 1})

	n, err := EncodeMixedRadix(raw.Bases, raw.Values)
	c.Assert(err, qt.IsNil)
	c.Assert(n.Int64(), qt.Equals, int64(50))
}

func TestRoundTripPluralityWithWriteIn(t *testing.T) {
	c := qt.New(t)
	policy := ContestPolicy{
		ContestID: "contest-2",
		System:    SystemPlurality,
		Candidates: []CandidatePolicy{
			{CandidateID: "1"},
			{CandidateID: "write-in", WriteIn: true},
		},
		WriteInBase:      256,
		WriteInSlotCount: 8,
		MaxSelections:    1,
	}
	text := "Alice"
	intent := DecodedVoteContest{
		ContestID: "contest-2",
		Choices: []Choice{
			{CandidateID: "1", Selected: -1},
			{CandidateID: "write-in", Selected: 0, WriteInText: &text},
		},
	}

	raw, err := policy.ToRawBallot(intent)
	c.Assert(err, qt.IsNil)

	n, err := EncodeMixedRadix(raw.Bases, raw.Values)
	c.Assert(err, qt.IsNil)

	back, err := DecodeMixedRadix(n, raw.Bases)
	c.Assert(err, qt.IsNil)

	decoded := policy.FromRawBallot(RawBallot{Bases: raw.Bases, Values: back})
	c.Assert(decoded.Errors, qt.HasLen, 0)
	c.Assert(decoded.Choices[1].Selected, qt.Equals, int64(0))
	c.Assert(*decoded.Choices[1].WriteInText, qt.Equals, "Alice")
}

func TestExplicitInvalidRejectedByPolicy(t *testing.T) {
	c := qt.New(t)
	policy := pluralityPolicy()
	policy.AllowExplicitInvalid = false
	decoded := policy.FromRawBallot(RawBallot{
		Bases:  []uint64{2, 2, 2, 2, 2, 2},
		Values: []uint64{1, 0, 0, 0, 0, 0},
	})
	c.Assert(decoded.Errors, qt.HasLen, 1)
	c.Assert(decoded.Errors[0].Class, qt.Equals, ClassExplicit)
}

func TestWriteInWithoutTerminatorIsEncodingError(t *testing.T) {
	c := qt.New(t)
	policy := ContestPolicy{
		ContestID: "contest-3",
		System:    SystemPlurality,
		Candidates: []CandidatePolicy{
			{CandidateID: "write-in", WriteIn: true},
		},
		WriteInBase:      256,
		WriteInSlotCount: 3,
	}
	decoded := policy.FromRawBallot(RawBallot{
		Bases:  []uint64{2, 2, 256, 256, 256},
		Values: []uint64{0, 1, 65, 66, 67}, // "ABC" never hits a zero terminator
	})
	c.Assert(decoded.Errors, qt.Not(qt.HasLen), 0)
	c.Assert(decoded.Errors[len(decoded.Errors)-1].Class, qt.Equals, ClassEncoding)
}
