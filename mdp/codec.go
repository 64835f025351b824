package mdp

import (
	"encoding/binary"
	"fmt"
)

// Wire opcodes for the job/result envelopes (C1). These are the frame-0
// tags a JOB or JOBRES multi-part message opens with.
const (
	opJob    = "JOB"
	opJobRes = "JOBRES"
)

// EncodeJob frames a Job as ["JOB", serialized_job], where serialized_job
// is a length-prefixed, self-delimiting encoding of the target name and
// argument list.
func EncodeJob(job Job) [][]byte {
	return [][]byte{[]byte(opJob), serializeJob(job)}
}

// DecodeJob parses a frame produced by EncodeJob. It fails with
// ErrBadFrame if the frame is malformed, and with ErrProtocolError if it
// carries the wrong opcode.
func DecodeJob(frame [][]byte) (Job, error) {
	if len(frame) != 2 {
		return Job{}, newDispatchError(ErrBadFrame,
			fmt.Sprintf("job frame must have 2 parts, got %d", len(frame)))
	}
	if string(frame[0]) != opJob {
		return Job{}, newDispatchError(ErrProtocolError,
			fmt.Sprintf("expected opcode %q, got %q", opJob, frame[0]))
	}
	return deserializeJob(frame[1])
}

// EncodeResult frames a result envelope as
// ["JOBRES", worker_id, ok_byte, payload].
func EncodeResult(workerID string, ok bool, payload []byte) [][]byte {
	okByte := byte(0)
	if ok {
		okByte = 1
	}
	return [][]byte{[]byte(opJobRes), []byte(workerID), {okByte}, payload}
}

// DecodeResult parses a frame produced by EncodeResult.
func DecodeResult(frame [][]byte) (workerID string, ok bool, payload []byte, err error) {
	if len(frame) != 4 {
		return "", false, nil, newDispatchError(ErrBadFrame,
			fmt.Sprintf("result frame must have 4 parts, got %d", len(frame)))
	}
	if string(frame[0]) != opJobRes {
		return "", false, nil, newDispatchError(ErrProtocolError,
			fmt.Sprintf("expected opcode %q, got %q", opJobRes, frame[0]))
	}
	if len(frame[2]) != 1 {
		return "", false, nil, newDispatchError(ErrBadFrame, "ok byte must be exactly 1 byte")
	}
	return string(frame[1]), frame[2][0] != 0, frame[3], nil
}

// serializeJob produces a self-delimiting encoding of target name and
// args: a 4-byte big-endian length prefix ahead of each string.
func serializeJob(job Job) []byte {
	size := 4 + len(job.TargetName) + 4
	for _, a := range job.Args {
		size += 4 + len(a)
	}

	buf := make([]byte, 0, size)
	buf = appendLenPrefixed(buf, []byte(job.TargetName))

	count := make([]byte, 4)
	binary.BigEndian.PutUint32(count, uint32(len(job.Args)))
	buf = append(buf, count...)

	for _, a := range job.Args {
		buf = appendLenPrefixed(buf, a)
	}
	return buf
}

func deserializeJob(data []byte) (Job, error) {
	target, rest, err := readLenPrefixed(data)
	if err != nil {
		return Job{}, newDispatchError(ErrBadFrame, "truncated target name: "+err.Error())
	}

	if len(rest) < 4 {
		return Job{}, newDispatchError(ErrBadFrame, "truncated argument count")
	}
	argc := binary.BigEndian.Uint32(rest[:4])
	rest = rest[4:]

	args := make([][]byte, 0, argc)
	for i := uint32(0); i < argc; i++ {
		var arg []byte
		arg, rest, err = readLenPrefixed(rest)
		if err != nil {
			return Job{}, newDispatchError(ErrBadFrame,
				fmt.Sprintf("truncated argument %d: %s", i, err))
		}
		args = append(args, arg)
	}

	return Job{TargetName: string(target), Args: args}, nil
}

func appendLenPrefixed(buf, data []byte) []byte {
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(data)))
	buf = append(buf, lenBuf...)
	return append(buf, data...)
}

func readLenPrefixed(data []byte) (value, rest []byte, err error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("need 4 bytes for length prefix, have %d", len(data))
	}
	n := binary.BigEndian.Uint32(data[:4])
	data = data[4:]
	if uint32(len(data)) < n {
		return nil, nil, fmt.Errorf("need %d bytes of payload, have %d", n, len(data))
	}
	return data[:n], data[n:], nil
}
