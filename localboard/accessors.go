package localboard

// Typed accessors. Each takes the caller-supplied expected hash and
// returns ErrMismatchedArtifactHash rather than ever returning an artifact
// that doesn't match it.

func (lb *LocalBoard) GetConfiguration(hash [32]byte) ([]byte, error) {
	return lb.Get(StatementKey{Kind: KindConfiguration, SignerPosition: ProtocolManager}, hash)
}

func (lb *LocalBoard) GetChannel(signerPosition int, hash [32]byte) ([]byte, error) {
	return lb.Get(StatementKey{Kind: KindChannel, SignerPosition: signerPosition}, hash)
}

func (lb *LocalBoard) GetShares(signerPosition int, hash [32]byte) ([]byte, error) {
	return lb.Get(StatementKey{Kind: KindShares, SignerPosition: signerPosition}, hash)
}

func (lb *LocalBoard) GetDKGPublicKey(signerPosition int, hash [32]byte) ([]byte, error) {
	return lb.Get(StatementKey{Kind: KindPublicKey, SignerPosition: signerPosition}, hash)
}

func (lb *LocalBoard) GetBallots(batch uint64, hash [32]byte) ([]byte, error) {
	return lb.Get(StatementKey{Kind: KindBallots, SignerPosition: ProtocolManager, Batch: batch}, hash)
}

func (lb *LocalBoard) GetMix(signerPosition int, batch, mixNumber uint64, hash [32]byte) ([]byte, error) {
	return lb.Get(StatementKey{Kind: KindMix, SignerPosition: signerPosition, Batch: batch, MixNumber: mixNumber}, hash)
}

func (lb *LocalBoard) GetDecryptionFactors(signerPosition int, batch uint64, hash [32]byte) ([]byte, error) {
	return lb.Get(StatementKey{Kind: KindDecryptionFactors, SignerPosition: signerPosition, Batch: batch}, hash)
}

func (lb *LocalBoard) GetPlaintexts(batch uint64, hash [32]byte) ([]byte, error) {
	return lb.Get(StatementKey{Kind: KindPlaintexts, SignerPosition: ProtocolManager, Batch: batch}, hash)
}
