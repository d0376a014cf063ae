package cli

type outputMode int

const (
	outputModeText outputMode = iota
	outputModeJSON
)

func outputModeFor(json bool) outputMode {
	if json {
		return outputModeJSON
	}
	return outputModeText
}

func (m outputMode) isJSON() bool {
	return m == outputModeJSON
}
