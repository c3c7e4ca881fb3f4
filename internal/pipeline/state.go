package pipeline

import "github.com/i474232898/track-enrichment/internal/enrich"

// State is the phase the driver is currently in.
type State string

const (
	Idle             State = "idle"
	Downloading      State = "downloading"
	Rendering        State = "rendering"
	EnrichingWeather State = "enriching_weather"
	EnrichingRegion  State = "enriching_region"
	EnrichingSteps   State = "enriching_steps"
	EnrichingTerrain State = "enriching_terrain"
	Persisting       State = "persisting"
	Visualizing      State = "visualizing"
	Augmenting       State = "augmenting"
	Sleeping         State = "sleeping"
)

// States lists every state in cycle order.
var States = []State{
	Idle, Downloading, Rendering,
	EnrichingWeather, EnrichingRegion, EnrichingSteps, EnrichingTerrain,
	Persisting, Visualizing, Augmenting, Sleeping,
}

var stateNames = func() []string {
	names := make([]string, len(States))
	for i, s := range States {
		names[i] = string(s)
	}
	return names
}()

// stageStates maps enrichment stage names to driver states.
var stageStates = map[string]State{
	enrich.StageWeather: EnrichingWeather,
	enrich.StageRegion:  EnrichingRegion,
	enrich.StageSteps:   EnrichingSteps,
	enrich.StageTerrain: EnrichingTerrain,
}
