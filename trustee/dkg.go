package trustee

import (
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"

	"github.com/sequent-io/e2e-core/crypto/ethereum"
	"github.com/sequent-io/e2e-core/group"
	"github.com/sequent-io/e2e-core/localboard"
	"github.com/sequent-io/e2e-core/log"
)

const domainChannelPoK = "e2e-core/dkg/channel-pok"
const domainPublicKeyPoK = "e2e-core/dkg/publickey-pok"
const domainPublicKeySig = "e2e-core/dkg/publickey-signature"

// ChannelPayload is Channel_i: an ephemeral public key used for
// privately encrypting Shamir shares to this trustee, plus a Schnorr PoK
// of the matching private key (S0).
type ChannelPayload struct {
	PubKey []byte
	PoK    schnorrWire
}

type schnorrWire struct {
	Commitment []byte
	Response   []byte
}

func toSchnorrWire(p *group.SchnorrProof) schnorrWire {
	return schnorrWire{Commitment: p.Commitment.Marshal(), Response: p.Response.Bytes()}
}

func fromSchnorrWire(w schnorrWire) (*group.SchnorrProof, error) {
	pt := group.NewPoint()
	if err := pt.Unmarshal(w.Commitment); err != nil {
		return nil, err
	}
	return &group.SchnorrProof{Commitment: pt, Response: new(big.Int).SetBytes(w.Response)}, nil
}

// EncryptedShare is one Shamir share of SharesPayload, encrypted to its
// recipient's Channel key via group.EncryptScalar.
type EncryptedShare struct {
	Ciphertext []byte
	Ephemeral  []byte
}

// SharesPayload is Shares_i: a Shamir sharing of trustee i's secret
// polynomial, one encrypted share per receiver, plus the Feldman
// commitment polynomial (S1).
type SharesPayload struct {
	Commitments [][]byte // commitments[k] = Marshal(a_k * G)
	Shares      map[int]EncryptedShare
}

// PublicKeyPayload is PublicKey_i: g^{a_i0} with a Schnorr PoK (S2).
type PublicKeyPayload struct {
	PubKey []byte
	PoK    schnorrWire
}

// PublicKeySignaturePayload is PublicKeySignature_i: a signature over
// H(PK, cfg_h) (S3).
type PublicKeySignaturePayload struct {
	Signature []byte
}

// DKGState holds one trustee's private DKG material across steps.
type DKGState struct {
	MyPosition   int
	Cfg          Cfg
	CfgHash      []byte
	ChannelPriv  *big.Int
	DealerCoeffs []*big.Int // length t; DealerCoeffs[0] is this trustee's additive contribution a_i0 to the election secret key
	SignKey      *ethereum.SignKeys
}

// StepDKG runs one round of the DKG state machine (S0-S4), returning
// every message this trustee is now ready to emit. A verification
// failure at S2 is fatal and returned as an error; the caller must halt
// rather than keep stepping with an unverified share.
func StepDKG(lb *localboard.LocalBoard, st DKGState) ([]OutgoingMessage, error) {
	var out []OutgoingMessage
	n := st.Cfg.N()

	// S0: post Channel_i.
	channelKey := localboard.StatementKey{Kind: localboard.KindChannel, SignerPosition: st.MyPosition}
	if _, ok := lb.Has(channelKey); !ok {
		channelPub := group.NewPoint().ScalarBaseMult(st.ChannelPriv).(*group.G1)
		pok, err := group.ProveSchnorr(domainChannelPoK, st.ChannelPriv, channelPub)
		if err != nil {
			return out, err
		}
		payload := ChannelPayload{PubKey: channelPub.Marshal(), PoK: toSchnorrWire(pok)}
		enc, err := cbor.Marshal(payload)
		if err != nil {
			return out, err
		}
		msg, err := sign(channelKey, enc, st.SignKey)
		if err != nil {
			return out, err
		}
		out = append(out, msg)
		return out, nil // one step at a time keeps the trustee's own message ordering simple
	}

	channels := lb.AllByKindAndBatch(localboard.KindChannel, 0)
	if len(channels) < n {
		return out, nil // S1 not yet triggered
	}

	// S1: post Shares_i.
	sharesKey := localboard.StatementKey{Kind: localboard.KindShares, SignerPosition: st.MyPosition}
	if _, ok := lb.Has(sharesKey); !ok {
		commitments := make([][]byte, len(st.DealerCoeffs))
		for k, a := range st.DealerCoeffs {
			commitments[k] = group.NewPoint().ScalarBaseMult(a).(*group.G1).Marshal()
		}
		shares := make(map[int]EncryptedShare, n)
		for pos := 0; pos < n; pos++ {
			chPayload, err := decodeChannel(channels[pos])
			if err != nil {
				return out, fmt.Errorf("%w: channel %d: %v", localboard.ErrConfigurationMismatch, pos, err)
			}
			recipientPub := group.NewPoint()
			if err := recipientPub.Unmarshal(chPayload.PubKey); err != nil {
				return out, err
			}
			if !group.VerifySchnorr(domainChannelPoK, recipientPub, mustSchnorr(chPayload.PoK)) {
				return out, fmt.Errorf("%w: channel PoK failed for position %d", localboard.ErrConfigurationMismatch, pos)
			}
			shareVal := group.EvaluatePolynomial(st.DealerCoeffs, pos+1)
			cipher, eph, err := group.EncryptScalar(recipientPub, shareVal)
			if err != nil {
				return out, err
			}
			shares[pos] = EncryptedShare{Ciphertext: cipher.Bytes(), Ephemeral: eph.Marshal()}
		}
		payload := SharesPayload{Commitments: commitments, Shares: shares}
		enc, err := cbor.Marshal(payload)
		if err != nil {
			return out, err
		}
		msg, err := sign(sharesKey, enc, st.SignKey)
		if err != nil {
			return out, err
		}
		out = append(out, msg)
		return out, nil
	}

	allShares := lb.AllByKindAndBatch(localboard.KindShares, 0)
	if len(allShares) < n {
		return out, nil
	}

	// S2: verify every received share, then post PublicKey_i.
	pubKeyKey := localboard.StatementKey{Kind: localboard.KindPublicKey, SignerPosition: st.MyPosition}
	if _, ok := lb.Has(pubKeyKey); !ok {
		for sender, raw := range allShares {
			payload, err := decodeShares(raw)
			if err != nil {
				return out, fmt.Errorf("%w: shares from %d: %v", localboard.ErrConfigurationMismatch, sender, err)
			}
			enc, ok := payload.Shares[st.MyPosition]
			if !ok {
				return out, fmt.Errorf("%w: no share for position %d from sender %d", localboard.ErrMissingArtifact, st.MyPosition, sender)
			}
			commitments := make([]*group.G1, len(payload.Commitments))
			for i, c := range payload.Commitments {
				pt := group.NewPoint()
				if err := pt.Unmarshal(c); err != nil {
					return out, err
				}
				commitments[i] = pt
			}
			eph := group.NewPoint()
			if err := eph.Unmarshal(enc.Ephemeral); err != nil {
				return out, err
			}
			if err := group.VerifyChannelShare(st.ChannelPriv, new(big.Int).SetBytes(enc.Ciphertext), eph, st.MyPosition+1, commitments); err != nil {
				return out, fmt.Errorf("%w: sender %d: %v", localboard.ErrConfigurationMismatch, sender, err)
			}
		}

		mySecret := st.DealerCoeffs[0]
		myPub := group.NewPoint().ScalarBaseMult(mySecret).(*group.G1)
		pok, err := group.ProveSchnorr(domainPublicKeyPoK, mySecret, myPub)
		if err != nil {
			return out, err
		}
		payload := PublicKeyPayload{PubKey: myPub.Marshal(), PoK: toSchnorrWire(pok)}
		enc, err := cbor.Marshal(payload)
		if err != nil {
			return out, err
		}
		msg, err := sign(pubKeyKey, enc, st.SignKey)
		if err != nil {
			return out, err
		}
		out = append(out, msg)
		return out, nil
	}

	pubKeys := lb.AllByKindAndBatch(localboard.KindPublicKey, 0)
	if len(pubKeys) < n {
		return out, nil
	}

	// S3: compute election PK, post PublicKeySignature_i over H(PK, cfg_h).
	sigKey := localboard.StatementKey{Kind: localboard.KindPublicKeySignature, SignerPosition: st.MyPosition}
	if _, ok := lb.Has(sigKey); !ok {
		pk, err := CombinePublicKeys(pubKeys)
		if err != nil {
			return out, err
		}
		challenge := group.Challenge(domainPublicKeySig, pk, st.CfgHash)
		sig, err := st.SignKey.SignEthereum(challenge.Bytes())
		if err != nil {
			return out, err
		}
		payload := PublicKeySignaturePayload{Signature: sig}
		enc, err := cbor.Marshal(payload)
		if err != nil {
			return out, err
		}
		msg, err := sign(sigKey, enc, st.SignKey)
		if err != nil {
			return out, err
		}
		out = append(out, msg)
		return out, nil
	}

	sigs := lb.AllByKindAndBatch(localboard.KindPublicKeySignature, 0)
	if len(sigs) >= st.Cfg.Threshold {
		log.Debugw("dkg complete", "position", st.MyPosition)
	}
	return out, nil
}

// CombineSecretShare sums the Shamir shares every dealer addressed to
// st.MyPosition into this trustee's share s_i of the combined election
// secret key, s_i = Σ_j f_j(position+1). Callable once S1's prerequisite
// (all N Shares posted) is satisfied; it re-verifies nothing since S2
// already did so, but independently re-derives the same decrypted values.
func CombineSecretShare(lb *localboard.LocalBoard, st DKGState) (*big.Int, error) {
	allShares := lb.AllByKindAndBatch(localboard.KindShares, 0)
	if len(allShares) < st.Cfg.N() {
		return nil, fmt.Errorf("%w: not all dealers have posted shares", localboard.ErrMissingArtifact)
	}
	order := group.NewPoint().Order()
	sum := big.NewInt(0)
	for _, raw := range allShares {
		payload, err := decodeShares(raw)
		if err != nil {
			return nil, err
		}
		enc, ok := payload.Shares[st.MyPosition]
		if !ok {
			return nil, fmt.Errorf("%w: no share for position %d", localboard.ErrMissingArtifact, st.MyPosition)
		}
		eph := group.NewPoint()
		if err := eph.Unmarshal(enc.Ephemeral); err != nil {
			return nil, err
		}
		share := group.DecryptScalar(st.ChannelPriv, new(big.Int).SetBytes(enc.Ciphertext), eph)
		sum.Add(sum, share)
		sum.Mod(sum, order)
	}
	return sum, nil
}

// CombinePublicKeys sums every trustee's g^{a_i0} contribution into the
// election public key PK = Σ g^{a_i0} (S3).
func CombinePublicKeys(pubKeys map[int][]byte) (*group.G1, error) {
	pk := group.NewPoint()
	for _, raw := range pubKeys {
		payload, err := decodePublicKey(raw)
		if err != nil {
			return nil, err
		}
		contribution := group.NewPoint()
		if err := contribution.Unmarshal(payload.PubKey); err != nil {
			return nil, err
		}
		if !group.VerifySchnorr(domainPublicKeyPoK, contribution, mustSchnorr(payload.PoK)) {
			return nil, fmt.Errorf("%w: public key PoK failed", localboard.ErrConfigurationMismatch)
		}
		pk = group.NewPoint().Add(pk, contribution).(*group.G1)
	}
	return pk, nil
}

func decodeChannel(raw []byte) (ChannelPayload, error) {
	var p ChannelPayload
	err := cbor.Unmarshal(raw, &p)
	return p, err
}

func decodeShares(raw []byte) (SharesPayload, error) {
	var p SharesPayload
	err := cbor.Unmarshal(raw, &p)
	return p, err
}

func decodePublicKey(raw []byte) (PublicKeyPayload, error) {
	var p PublicKeyPayload
	err := cbor.Unmarshal(raw, &p)
	return p, err
}

func mustSchnorr(w schnorrWire) *group.SchnorrProof {
	p, err := fromSchnorrWire(w)
	if err != nil {
		return nil
	}
	return p
}
