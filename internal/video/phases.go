package video

var generationPhases = []string{
	"Warming up the digital director...",
	"Choreographing pixels into motion...",
	"Rendering your cinematic vision...",
	"This can take a few minutes, hang tight!",
	"Adding the final touches of movie magic...",
	"Almost ready for the premiere...",
}

// PhaseLabel is the progress label shown after attempt status checks. The
// labels rotate so long jobs keep showing movement.
func PhaseLabel(attempt int) string {
	if attempt < 0 {
		attempt = 0
	}
	return generationPhases[attempt%len(generationPhases)]
}

const (
	ExtractingFramesLabel = "Extracting frames from video..."
	analyzingFramesFormat = "Analyzing %d frames..."
)
