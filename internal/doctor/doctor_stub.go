//go:build !whisper

package doctor

func checkWhisperBuild() Result {
	return Result{Name: "whisper", Pass: false, Detail: "built without whisper support (rebuild with -tags whisper or use engine.backend = \"exec\")"}
}
