package recognition

import "context"

// Box is the bounding box of a face as reported by the engine.
type Box struct {
	Probability float64 `json:"probability"`
	XMin        int     `json:"x_min"`
	YMin        int     `json:"y_min"`
	XMax        int     `json:"x_max"`
	YMax        int     `json:"y_max"`
}

// Candidate is one subject match for a recognized face.
type Candidate struct {
	SubjectID  string  `json:"subject"`
	Similarity float64 `json:"similarity"`
}

// RecognitionResult is one face found by the engine in an image, with its
// candidate subjects ordered by similarity descending.
type RecognitionResult struct {
	Box        Box         `json:"box"`
	Candidates []Candidate `json:"subjects"`
}

// Engine is the contract this subsystem consumes from the external face
// recognition service. The concrete Client talks HTTP; tests inject fakes.
// All calls are synchronous and may fail transiently; implementations are
// expected to apply their own bounded retry policy.
type Engine interface {
	// Ping reports whether the engine is reachable
	Ping(ctx context.Context) error

	// CreateSubject registers a new subject and returns its engine-side id
	CreateSubject(ctx context.Context, name string) (string, error)

	// DeleteSubject removes a subject and all its faces
	DeleteSubject(ctx context.Context, subjectID string) error

	// AddFace uploads one face image as an example of the subject and
	// returns the engine's handle for the stored face
	AddFace(ctx context.Context, subjectID string, image []byte, filename string) (string, error)

	// DeleteFace removes a single stored face by its handle
	DeleteFace(ctx context.Context, faceHandle string) error

	// Recognize finds faces in an image and returns candidate subjects per face
	Recognize(ctx context.Context, image []byte, filename string) ([]RecognitionResult, error)

	// CompareFaces returns the engine's similarity score between the best
	// face in each of two images, in [0,1]
	CompareFaces(ctx context.Context, source, target []byte) (float64, error)

	// ListSubjects returns every subject id known to the engine
	ListSubjects(ctx context.Context) ([]string, error)

	// ListFaces returns the handles of all faces stored for a subject
	ListFaces(ctx context.Context, subjectID string) ([]string, error)
}
