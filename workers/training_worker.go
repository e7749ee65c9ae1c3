package workers

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/camden-git/faceidbackend/services"
)

// TrainingWorker periodically scans for auto-train candidates and drains
// the pending training queue. One background goroutine; uploads inside a
// queue pass are bounded by the training service's own concurrency caps.
type TrainingWorker struct {
	Training *services.TrainingService

	PollInterval     time.Duration
	TrainingInterval time.Duration
	MinFaces         int

	Wg       sync.WaitGroup
	StopChan chan struct{}
}

// NewTrainingWorker creates and starts the background queue processor
func NewTrainingWorker(training *services.TrainingService, pollInterval, trainingInterval time.Duration, minFaces int) *TrainingWorker {
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	w := &TrainingWorker{
		Training:         training,
		PollInterval:     pollInterval,
		TrainingInterval: trainingInterval,
		MinFaces:         minFaces,
		StopChan:         make(chan struct{}),
	}
	w.Wg.Add(1)
	go w.run()
	log.Printf("Started training queue worker (poll interval %s)", pollInterval)
	return w
}

func (w *TrainingWorker) run() {
	defer w.Wg.Done()

	ticker := time.NewTicker(w.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.pass()
		case <-w.StopChan:
			log.Println("Training worker stopping: stop signal received")
			return
		}
	}
}

// pass runs one auto-train scan plus one queue drain
func (w *TrainingWorker) pass() {
	ctx, cancel := context.WithTimeout(context.Background(), w.PollInterval)
	defer cancel()

	if _, err := w.Training.AutoTrain(w.TrainingInterval, w.MinFaces); err != nil {
		log.Printf("Worker: ERROR during auto-train scan: %v", err)
	}

	summary, err := w.Training.ProcessQueue(ctx)
	if err != nil {
		log.Printf("Worker: ERROR processing training queue: %v", err)
		return
	}
	if summary.JobsProcessed > 0 {
		log.Printf("Worker: processed %d training job(s): %d completed, %d failed, %d faces uploaded",
			summary.JobsProcessed, summary.JobsCompleted, summary.JobsFailed, summary.FacesUploaded)
	}
}

// Stop shuts the worker down and waits for an in-flight pass to finish
func (w *TrainingWorker) Stop() {
	log.Println("Stopping training worker...")
	close(w.StopChan)
	w.Wg.Wait()
	log.Println("Training worker stopped")
}
