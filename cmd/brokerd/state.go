package main

import "sync"

// SetStatus sets the current status of the broker process.
func SetStatus(value string) {
	state.setStatus(value)
}

// GetStatus returns the current status of the broker process.
func GetStatus() string {
	return state.getStatus()
}

// SetLastError records the most recent error encountered by the broker.
func SetLastError(err error) {
	state.setLastError(err)
}

// GetErrorCount returns the total number of errors encountered.
func GetErrorCount() int {
	return state.getErrorCount()
}

// GetLastError returns the last error encountered by the broker.
func GetLastError() error {
	return state.getLastError()
}

type processState struct {
	sync.RWMutex
	status     string
	errorCount int
	lastError  error
}

func (s *processState) setStatus(value string) {
	s.Lock()
	s.status = value
	s.Unlock()
}

func (s *processState) getStatus() string {
	s.RLock()
	defer s.RUnlock()
	return s.status
}

func (s *processState) setLastError(err error) {
	s.Lock()
	s.lastError = err
	s.errorCount++
	s.Unlock()
}

func (s *processState) getErrorCount() int {
	s.RLock()
	defer s.RUnlock()
	return s.errorCount
}

func (s *processState) getLastError() error {
	s.RLock()
	defer s.RUnlock()
	return s.lastError
}

var state = &processState{}
