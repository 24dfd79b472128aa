package acoustic

// IdentifyChirps runs a matched filter for each candidate node's chirp
// template against one recording and returns the peak sample index for
// every node whose chirp was detected above the noise floor. This lets a
// listening node disambiguate which of several nodes (each on its own
// deterministic channel) produced a given recorded burst.
func IdentifyChirps(recording []float64, candidateNodeIDs []string, duration float64, sampleRate int) map[string]int {
	hits := map[string]int{}
	for _, nodeID := range candidateNodeIDs {
		params := ChirpParamsFor(nodeID, duration, sampleRate)
		template := GenerateChirp(params)
		corr := MatchedFilter(recording, template)
		if peak, ok := FindPeakTOF(corr, 0); ok {
			hits[nodeID] = peak
		}
	}
	return hits
}
