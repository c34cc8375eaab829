package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// BypassFailuresKey returns the sorted-set key holding a student's failed
// bypass attempts for one context
func (r *CacheKeyStruct) BypassFailuresKey(studentID, contextType, contextID string) string {
	return fmt.Sprintf("bypass:%s:%s:%s:failures", studentID, contextType, contextID)
}

// TestMonitorChannel returns the Redis PubSub channel name for a test monitor
func (r *CacheKeyStruct) TestMonitorChannel(testID string) string {
	return fmt.Sprintf("test:%s:monitor", testID)
}

var CacheKey = NewCacheKeyStruct()
