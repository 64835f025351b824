package mdp

// wrapRequest prefixes a job frame (from EncodeJob) with the MDP worker
// command byte that tells the worker this is a dispatch, not a
// heartbeat or disconnect notice.
func wrapRequest(jobFrame [][]byte) [][]byte {
	return append([][]byte{[]byte(MdpwRequest)}, jobFrame...)
}

// wrapReply prefixes a result frame (from EncodeResult) with the MDP
// worker command byte identifying it as a job reply.
func wrapReply(resultFrame [][]byte) [][]byte {
	return append([][]byte{[]byte(MdpwReply)}, resultFrame...)
}

// wrapReady builds the frame a worker sends to announce itself for a
// service.
func wrapReady(service string) [][]byte {
	return [][]byte{[]byte(MdpwReady), []byte(service)}
}

// wrapHeartbeat builds the frame either side sends as a keepalive.
func wrapHeartbeat() [][]byte {
	return [][]byte{[]byte(MdpwHeartbeat)}
}

// wrapDisconnect builds the frame the broker sends to tell a worker to
// reconnect.
func wrapDisconnect() [][]byte {
	return [][]byte{[]byte(MdpwDisconnect)}
}
