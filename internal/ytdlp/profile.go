package ytdlp

// OutputTemplate names every artifact after its title and id so the
// destination scan can find it by id.
const OutputTemplate = "%(title)s [%(id)s].%(ext)s"

// Profile is one structured set of format and post-processing options.
type Profile struct {
	Name           string
	Format         string
	MergeFormat    string
	ExtractAudio   bool
	AudioFormat    string
	AudioQuality   string
	EmbedSubs      bool
	EmbedThumbnail bool
	EmbedMetadata  bool
	EmbedChapters  bool
	EmbedInfoJSON  bool
	// RenameExt replaces the artifact extension after a successful download.
	RenameExt string
}

func VideoProfiles() []Profile {
	primary := Profile{
		Name:           "video",
		Format:         "bestvideo+bestaudio",
		MergeFormat:    "mkv",
		EmbedSubs:      true,
		EmbedThumbnail: true,
		EmbedMetadata:  true,
		EmbedChapters:  true,
		EmbedInfoJSON:  true,
	}
	fallback := primary
	fallback.Name = "video-mp4"
	fallback.Format = "bestvideo[ext=mp4]+bestaudio"
	return []Profile{primary, fallback}
}

func AudioProfiles() []Profile {
	return []Profile{{
		Name:           "audio",
		Format:         "bestaudio",
		ExtractAudio:   true,
		AudioFormat:    "opus",
		AudioQuality:   "0",
		EmbedThumbnail: true,
		EmbedMetadata:  true,
		EmbedChapters:  true,
		RenameExt:      ".ogg",
	}}
}

func ProfilesFor(audioOnly bool) []Profile {
	if audioOnly {
		return AudioProfiles()
	}
	return VideoProfiles()
}

func (p Profile) Args() []string {
	var args []string
	if p.Format != "" {
		args = append(args, "-f", p.Format)
	}
	if p.MergeFormat != "" {
		args = append(args, "--merge-output-format", p.MergeFormat)
	}
	if p.ExtractAudio {
		args = append(args, "--extract-audio")
		if p.AudioFormat != "" {
			args = append(args, "--audio-format", p.AudioFormat)
		}
		if p.AudioQuality != "" {
			args = append(args, "--audio-quality", p.AudioQuality)
		}
	}
	if p.EmbedSubs {
		args = append(args, "--embed-subs", "--sub-langs", "all")
	}
	if p.EmbedThumbnail {
		args = append(args, "--embed-thumbnail")
	}
	if p.EmbedMetadata {
		args = append(args, "--embed-metadata")
	}
	if p.EmbedChapters {
		args = append(args, "--embed-chapters")
	}
	if p.EmbedInfoJSON {
		args = append(args, "--embed-info-json")
	}
	return args
}
