// Package voice implements capability.Speaker and capability.Listener.
//
// Console variants print and read text; CommandSpeaker shells out to a TTS
// program such as espeak. Every speaker serializes its callers.
package voice
