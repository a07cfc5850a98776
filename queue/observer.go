package queue

import "time"

// Observer is notified about job lifecycle transitions. Methods are called
// from the submitting goroutine (JobQueued) or the queue's worker goroutine
// and must not block.
type Observer interface {
	JobQueued(job JobInfo, depth int)
	JobStarted(job JobInfo)
	JobFinished(job JobInfo, elapsed time.Duration, err error)
}

// ObserverFuncs builds an Observer from optional callbacks.
type ObserverFuncs struct {
	OnQueued   func(job JobInfo, depth int)
	OnStarted  func(job JobInfo)
	OnFinished func(job JobInfo, elapsed time.Duration, err error)
}

func (o ObserverFuncs) JobQueued(job JobInfo, depth int) {
	if o.OnQueued != nil {
		o.OnQueued(job, depth)
	}
}

func (o ObserverFuncs) JobStarted(job JobInfo) {
	if o.OnStarted != nil {
		o.OnStarted(job)
	}
}

func (o ObserverFuncs) JobFinished(job JobInfo, elapsed time.Duration, err error) {
	if o.OnFinished != nil {
		o.OnFinished(job, elapsed, err)
	}
}
