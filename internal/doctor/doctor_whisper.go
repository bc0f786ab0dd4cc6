//go:build whisper

package doctor

func checkWhisperBuild() Result {
	return Result{Name: "whisper", Pass: true, Detail: "built with whisper.cpp"}
}
