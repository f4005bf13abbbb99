package browser

import "testing"

const loggedOut = `<html><body><header><nav><a href="/">Home</a><a href="/signin">Sign in</a></nav></header>
<main><section><h1>Casino offers</h1><p>Sign in to see your offers.</p></section></main></body></html>`

func TestFingerprintDOM_Identical(t *testing.T) {
	if fingerprintDOM(loggedOut) != fingerprintDOM(loggedOut) {
		t.Error("identical markup produced different fingerprints")
	}
}

func TestFingerprintDOM_IgnoresText(t *testing.T) {
	other := `<html><body><header><nav><a href="/x">Inicio</a><a href="/y">Entrar</a></nav></header>
<main><section><h1>Ofertas</h1><p>Entre para ver.</p></section></main></body></html>`
	if fingerprintDOM(loggedOut) != fingerprintDOM(other) {
		t.Error("text-only changes moved the fingerprint")
	}
}

func TestFingerprintDOM_StructuralChange(t *testing.T) {
	loggedIn := `<html><body><header><nav><a href="/">Home</a><div class="menu"><ul><li><a href="/account/profile">Profile</a></li>
<li><a href="/account/upcoming-cruises">Cruises</a></li><li><button>Sign out</button></li></ul></div></nav></header>
<main><section><div class="grid"><article><h3>Offer</h3><p>x</p><a>View Sailings</a></article>
<article><h3>Offer</h3><p>y</p><a>View Sailings</a></article></div></section></main></body></html>`
	if !mutated(fingerprintDOM(loggedOut), fingerprintDOM(loggedIn), mutationThreshold) {
		t.Error("expected a structural change to count as a mutation")
	}
}

func TestFingerprintDOM_Empty(t *testing.T) {
	if fp := fingerprintDOM(""); fp != 0 {
		t.Errorf("empty markup should fingerprint to 0, got %064b", fp)
	}
}

func TestMutated_Threshold(t *testing.T) {
	tests := []struct {
		a, b uint64
		want bool
	}{
		{0, 0, false},
		{0b111, 0, false},
		{0b1111, 0, true},
		{^uint64(0), 0, true},
	}
	for _, tt := range tests {
		if got := mutated(tt.a, tt.b, 3); got != tt.want {
			t.Errorf("mutated(%b, %b) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
