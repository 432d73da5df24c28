package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

// ExamKey returns the cache key for an exam row.
func (r *CacheKeyStruct) ExamKey(examID string) string {
	return fmt.Sprintf("exam:%s", examID)
}

// ExamQuestionsKey returns the cache key for an exam's ordered questions.
func (r *CacheKeyStruct) ExamQuestionsKey(examID string) string {
	return fmt.Sprintf("exam:%s:questions", examID)
}

var CacheKey = &CacheKeyStruct{}
