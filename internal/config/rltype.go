package config

// RLType selects the reinforcement learning plan run by the "rl" mode.
type RLType int

const (
	// RLSingle trains once over the seed pool.
	RLSingle RLType = iota

	// RLSinglePg is like RLSingle. Kept as a separate name for configurations of policy gradient trainers.
	RLSinglePg

	// RLSingleAcMc trains once over everything in the generation slots.
	RLSingleAcMc

	// RLWithEvaluation trains over the seed pool for 10 cycles, evaluating each new checkpoint.
	RLWithEvaluation

	// RLContinuousPg rotates a fixed window of 5 slots mixed with as many seed pool samples, for 10 cycles.
	RLContinuousPg

	// RLFromScratchPg rotates a sliding window of 20 slots without seed pool nor evaluation, for 100 cycles.
	RLFromScratchPg

	// RLContinuousAcMc rotates an evicting sliding window of 10 slots, mixed with up to half as many seed pool
	// samples, for 100 cycles.
	RLContinuousAcMc
)

//go:generate go tool enumer -type=RLType -trimprefix=RL -transform=snake -values -text -json -yaml rltype.go
