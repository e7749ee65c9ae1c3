package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/camden-git/faceidbackend/config"
	"github.com/camden-git/faceidbackend/database"
	"github.com/camden-git/faceidbackend/handlers"
	"github.com/camden-git/faceidbackend/media"
	"github.com/camden-git/faceidbackend/recognition"
	"github.com/camden-git/faceidbackend/repository"
	"github.com/camden-git/faceidbackend/services"
	"github.com/camden-git/faceidbackend/workers"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Printf("Info: No .env file found or error loading: %v", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	dbDir := filepath.Dir(cfg.DatabasePath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		log.Fatalf("FATAL: Failed to create database directory %s: %v", dbDir, err)
	}

	db, err := database.InitGormDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database: %v", err)
	}
	if err := database.AutoMigrateModels(db); err != nil {
		log.Fatalf("FATAL: Failed to migrate database schema: %v", err)
	}

	faceRepo := repository.NewFaceRepository(db)
	personRepo := repository.NewPersonRepository(db)
	simRepo := repository.NewSimilarityRepository(db)
	clusterRepo := repository.NewClusterRepository(db)
	jobRepo := repository.NewTrainingJobRepository(db)

	engine := recognition.NewClient(cfg.RecognitionURL, cfg.RecognitionAPIKey, cfg.UploadRetries)
	images := media.NewCropLoader(cfg.RootDirectory)

	clustering := services.NewClusteringService(faceRepo, simRepo, clusterRepo, engine, images)
	assignment := services.NewAssignmentService(faceRepo, personRepo, clusterRepo, simRepo)
	training := services.NewTrainingService(jobRepo, faceRepo, personRepo, engine, images, services.TrainingConfig{
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
		UploadConcurrency: cfg.UploadConcurrency,
	})
	recognitionSvc := services.NewRecognitionService(faceRepo, personRepo, engine, images, services.RecognitionThresholds{
		AutoAssign:   cfg.AutoAssignThreshold,
		Confirmation: cfg.ConfirmationThreshold,
		BoxMatch:     cfg.BoxMatchThreshold,
	})
	consistency := services.NewConsistencyService(faceRepo, personRepo, engine)

	trainingWorker := workers.NewTrainingWorker(training, cfg.QueuePollInterval, cfg.TrainingInterval, cfg.MinFacesForAutoTrain)
	defer trainingWorker.Stop()

	log.Printf("Serving face crops from root: %s", cfg.RootDirectory)
	log.Printf("Using database: %s", cfg.DatabasePath)
	log.Printf("Recognition engine: %s", cfg.RecognitionURL)

	r := chi.NewRouter()

	corsOptions := cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"}, //TODO: configurable
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	corsHandler := cors.New(corsOptions)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(corsHandler.Handler)

	personHandler := &handlers.PersonHandler{PersonRepo: personRepo, Engine: engine}
	faceHandler := &handlers.FaceHandler{FaceRepo: faceRepo, Assignment: assignment, Clustering: clustering, Recognition: recognitionSvc}
	clusterHandler := &handlers.ClusterHandler{Clustering: clustering, Assignment: assignment, ClusterRepo: clusterRepo, Cfg: cfg}
	trainingHandler := &handlers.TrainingHandler{Training: training, Recognition: recognitionSvc, JobRepo: jobRepo}
	consistencyHandler := &handlers.ConsistencyHandler{Consistency: consistency, Engine: engine}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", consistencyHandler.Health)

		r.Route("/people", func(r chi.Router) {
			r.Post("/", personHandler.CreatePerson)
			r.Get("/", personHandler.ListPersons)
			r.Route("/{person_id}", func(r chi.Router) {
				r.Get("/", personHandler.GetPerson)
				r.Put("/", personHandler.UpdatePerson)
				r.Delete("/", personHandler.DeletePerson)
				r.Post("/train", trainingHandler.QueueTraining)
			})
		})

		r.Route("/images/faces", func(r chi.Router) {
			r.Get("/", faceHandler.ListFacesByImage)
		})

		r.Route("/faces", func(r chi.Router) {
			r.Post("/similarity", faceHandler.RecordSimilarity)
			r.Route("/{face_id}", func(r chi.Router) {
				r.Get("/", faceHandler.GetFace)
				r.Put("/assignment", faceHandler.AssignFace)
				r.Delete("/assignment", faceHandler.RemoveAssignment)
				r.Post("/invalid", faceHandler.MarkInvalid)
				r.Post("/unknown", faceHandler.MarkUnknown)
				r.Post("/confirm", faceHandler.ConfirmMatch)
				r.Get("/similar", faceHandler.SimilarFaces)
			})
		})

		r.Route("/clusters", func(r chi.Router) {
			r.Post("/run", clusterHandler.RunClustering)
			r.Get("/", clusterHandler.ListClusters)
			r.Route("/{cluster_id}", func(r chi.Router) {
				r.Get("/", clusterHandler.GetCluster)
				r.Post("/assign", clusterHandler.AssignCluster)
				r.Post("/review", clusterHandler.ReviewCluster)
				r.Delete("/", clusterHandler.DeleteCluster)
			})
		})

		r.Route("/training/jobs", func(r chi.Router) {
			r.Get("/", trainingHandler.ListJobs)
			r.Post("/process", trainingHandler.ProcessQueue)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", trainingHandler.GetJob)
				r.Post("/cancel", trainingHandler.CancelJob)
				r.Post("/retry", trainingHandler.RetryJob)
			})
		})

		r.Post("/recognition/batch", trainingHandler.BatchRecognize)

		r.Route("/consistency", func(r chi.Router) {
			r.Get("/quick/{person_id}", consistencyHandler.QuickCheck)
			r.Post("/check", consistencyHandler.FullCheck)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	serverAddr := ":" + port
	fmt.Printf("Server starting on http://localhost:%s\n", port)
	log.Printf("Server listening on %s", serverAddr)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	log.Fatal(server.ListenAndServe())
}
