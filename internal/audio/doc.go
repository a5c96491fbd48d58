// Package audio plays chunk audio. OtoPlayer drives the system output
// device through oto/v3 and accepts progressively appended PCM; MockPlayer
// is a scripted stand-in for tests.
package audio
