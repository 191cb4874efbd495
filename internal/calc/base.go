package calc

import (
	"context"
	"runtime"
	"sync"
)

// PipeLine represents a compute pipeline: a ring of buffer slots shared by
// loaders and a consumer, plus a pool of workers for row-parallel kernels.
type PipeLine struct {
	numQueueSize int
	numWorker    int
	jobQueue     chan int
	freeSlots    chan int
	pushCnt      int64
	popCnt       int64
	cntLock      sync.RWMutex
	closeOnce    sync.Once
}

// Init returns a compute PipeLine with numQueueSize ring slots and numWorker
// row workers. numWorker <= 0 uses one worker per CPU.
func Init(numQueueSize int, numWorker int) *PipeLine {
	if numWorker <= 0 {
		numWorker = runtime.NumCPU()
	}
	if numQueueSize < 0 {
		numQueueSize = 0
	}

	pl := PipeLine{
		numQueueSize: numQueueSize,
		numWorker:    numWorker,
		jobQueue:     make(chan int, numQueueSize),
		freeSlots:    make(chan int, numQueueSize),
	}

	for i := 0; i < numQueueSize; i++ {
		pl.freeSlots <- i
	}

	return &pl
}

// QueueSize returns the number of ring slots
func (p *PipeLine) QueueSize() int {
	return p.numQueueSize
}

// Malloc claims a buffer slot in the ring, blocking until one is free or ctx is done
func (p *PipeLine) Malloc(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return -1, err
	}

	select {
	case idx := <-p.freeSlots:
		return idx, nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// Push hands a filled slot to the consumer
func (p *PipeLine) Push(jobID int) {
	p.jobQueue <- jobID

	p.cntLock.Lock()
	p.pushCnt++
	p.cntLock.Unlock()
}

// Pop returns the next filled slot. ok is false once the pipeline is closed and drained.
func (p *PipeLine) Pop() (int, bool) {
	jobID, ok := <-p.jobQueue
	if !ok {
		return -1, false
	}

	p.cntLock.Lock()
	p.popCnt++
	p.cntLock.Unlock()

	return jobID, true
}

// Free returns a slot to the ring
func (p *PipeLine) Free(i int) {
	p.freeSlots <- i
}

// Close tells the consumer no more slots will be pushed
func (p *PipeLine) Close() {
	p.closeOnce.Do(func() {
		close(p.jobQueue)
	})
}

// Counts returns how many slots were pushed and popped so far
func (p *PipeLine) Counts() (int64, int64) {
	p.cntLock.RLock()
	defer p.cntLock.RUnlock()

	return p.pushCnt, p.popCnt
}

/*
	Workflow:

	Malloc -> Push -> Pop -> Free
*/

func each(fn func(int), order <-chan int, wg *sync.WaitGroup) {
	for {
		index, ok := <-order
		if ok {
			fn(index)
			wg.Done()
		} else {
			break
		}
	}
}

// Each calls fn for every index in [0, n), spread over the row workers
func (p *PipeLine) Each(n int, fn func(i int)) {
	if n <= 0 {
		return
	}

	order := make(chan int, p.numWorker)
	var wg sync.WaitGroup

	wg.Add(n)

	for i := 0; i < p.numWorker; i++ {
		go each(fn, order, &wg)
	}

	for i := 0; i < n; i++ {
		order <- i
	}

	wg.Wait()
	close(order)
}

type statistic struct {
	avg float64
	std float64
}
