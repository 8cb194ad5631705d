package testutil

// StaticTokens returns the same cycle token on every call. Unlike
// engine.FixedGenerator, which hands out a finite sequence, this never
// exhausts, so it suits tests that run an unknown number of cycles and
// golden comparisons that must be byte-stable.
type StaticTokens struct {
	token string
}

// NewStaticTokens creates a generator pinned to the given token.
// An empty token defaults to "test-cycle-0000".
func NewStaticTokens(token string) *StaticTokens {
	if token == "" {
		token = "test-cycle-0000"
	}
	return &StaticTokens{token: token}
}

// Generate implements engine.CycleTokenGenerator.
func (g *StaticTokens) Generate() string {
	return g.token
}
