// Copyright (c) 2024 The mwwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package stratum

import "sync"

// job is the server's single cached "most recent job": the one
// authoritative in-flight unit of work, replaced wholesale by the next
// NewJob call. onFoundOnce gates onFound so a job's producer callback
// fires at most once even if several peers submit solutions, or one peer
// submits more than one, for the same job id.
type job struct {
	id     string
	input  []byte
	pow    []byte
	height uint64

	onFound  func(pow []byte)
	onCancel func()

	onFoundOnce sync.Once
}

func (j *job) msg() message {
	return jobMsg(j.id, j.input, j.pow, j.height)
}

// deliver invokes onFound with sol's PoW bytes exactly once for this job,
// regardless of how many times deliver is called. Later submissions are
// still accepted on the wire and recorded as the most recent solution,
// but they never reach the producer a second time.
func (j *job) deliver(pow []byte) {
	j.onFoundOnce.Do(func() {
		if j.onFound != nil {
			j.onFound(pow)
		}
	})
}

// recentSolution records the most recent accepted submission for a job,
// so solution_result can be routed back to the peer that actually sent it.
type recentSolution struct {
	jobID    string
	pow      []byte
	fromPeer string
}
