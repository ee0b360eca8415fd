package models

// Usage carries all token and media counts from a completed provider response.
// This is intentionally a separate type from providers.Usage so the models
// package has no dependency on the providers package and can be imported
// independently (e.g. by an external billing consumer).
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	ReasoningTokens  int     // o1/o3 models — billed separately
	CacheReadTokens  int     // prompt cache hits (cheaper)
	CacheWriteTokens int     // prompt cache misses, written to cache
	ImageCount       int     // image generation requests
	AudioInputSecs   float64 // audio transcription (Whisper)
	AudioOutputChars int     // TTS (character count)
}

// CostResult breaks down the total cost of one GatewayRequest by billing
// component. Every field is USD. Summing every component field other than
// TotalUSD must always equal TotalUSD (invariant 3: cost >= 0).
type CostResult struct {
	InputUSD      float64
	OutputUSD     float64
	CacheReadUSD  float64
	CacheWriteUSD float64
	ReasoningUSD  float64
	ImageUSD      float64
	AudioUSD      float64
	EmbeddingUSD  float64
	TotalUSD      float64
	// ModelFound is false when the catalog has no entry for the requested
	// model; every cost field is zero in that case.
	ModelFound bool
}

func (r CostResult) sum() float64 {
	return r.InputUSD + r.OutputUSD + r.CacheReadUSD + r.CacheWriteUSD +
		r.ReasoningUSD + r.ImageUSD + r.AudioUSD + r.EmbeddingUSD
}

// perMillion prices n units against a nullable $-per-million rate. A nil
// rate means the catalog has no price for that component; a zero count
// never accrues cost even if a rate is set.
func perMillion(rate *float64, n int) float64 {
	if rate == nil || n <= 0 {
		return 0
	}
	return *rate * float64(n) / 1_000_000
}

func chatCost(p Pricing, u Usage) CostResult {
	return CostResult{
		InputUSD:      perMillion(p.InputPerMTokens, u.PromptTokens),
		OutputUSD:     perMillion(p.OutputPerMTokens, u.CompletionTokens),
		CacheReadUSD:  perMillion(p.CacheReadPerMTokens, u.CacheReadTokens),
		CacheWriteUSD: perMillion(p.CacheWritePerMTokens, u.CacheWriteTokens),
		ReasoningUSD:  perMillion(p.ReasoningPerMTokens, u.ReasoningTokens),
	}
}

func embeddingCost(p Pricing, u Usage) CostResult {
	return CostResult{EmbeddingUSD: perMillion(p.EmbeddingPerMTokens, u.PromptTokens)}
}

func imageCost(p Pricing, u Usage) CostResult {
	if p.ImagePerTile == nil || u.ImageCount <= 0 {
		return CostResult{}
	}
	return CostResult{ImageUSD: *p.ImagePerTile * float64(u.ImageCount)}
}

func audioInCost(p Pricing, u Usage) CostResult {
	if p.AudioInputPerMinute == nil || u.AudioInputSecs <= 0 {
		return CostResult{}
	}
	return CostResult{AudioUSD: *p.AudioInputPerMinute * u.AudioInputSecs / 60}
}

func audioOutCost(p Pricing, u Usage) CostResult {
	if p.AudioOutputPerCharacter == nil || u.AudioOutputChars <= 0 {
		return CostResult{}
	}
	return CostResult{AudioUSD: *p.AudioOutputPerCharacter * float64(u.AudioOutputChars)}
}

// Calculate computes the full cost of one completed request. modelKey is
// normally "provider/model-id"; a bare model ID is also accepted but falls
// back to a linear scan of the catalog (see Catalog.Get).
func Calculate(catalog Catalog, modelKey string, usage Usage) CostResult {
	model, ok := catalog.Get(modelKey)
	if !ok {
		return CostResult{ModelFound: false}
	}

	var r CostResult
	switch model.Mode {
	case ModeChat:
		r = chatCost(model.Pricing, usage)
	case ModeEmbedding:
		r = embeddingCost(model.Pricing, usage)
	case ModeImage:
		r = imageCost(model.Pricing, usage)
	case ModeAudioIn:
		r = audioInCost(model.Pricing, usage)
	case ModeAudioOut:
		r = audioOutCost(model.Pricing, usage)
	}

	r.ModelFound = true
	r.TotalUSD = r.sum()
	return r
}
