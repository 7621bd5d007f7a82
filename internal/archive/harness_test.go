package archive

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"yt-auto-saver/internal/catalog"
	"yt-auto-saver/internal/discovery"
	"yt-auto-saver/internal/model"
	"yt-auto-saver/internal/runstore"
	"yt-auto-saver/internal/ytdlp"
)

const fakeEngineScript = `#!/usr/bin/env bash
set -euo pipefail
args=" $* "
url="${@: -1}"
id="${url##*=}"
if [[ "$args" == *" --flat-playlist "* ]]; then
  cat "$YTDLP_FIXTURE"
  exit 0
fi
if [[ "$args" == *" --skip-download "* ]]; then
  printf '{"id":"%s","title":"Title %s","duration":42,"upload_date":"20240102"}' "$id" "$id"
  exit 0
fi
dir=""
proxy=""
while [[ $# -gt 0 ]]; do
  case "$1" in
    -P) dir="$2"; shift 2 ;;
    --proxy) proxy="$2"; shift 2 ;;
    *) shift ;;
  esac
done
echo "$id $proxy" >> "$CALL_LOG"
case "$id" in
  broken)
    echo "ERROR: [youtube] broken: Video unavailable" >&2
    exit 1
    ;;
  flaky)
    if [[ ! -f "$CALL_LOG.flaky" ]]; then
      touch "$CALL_LOG.flaky"
      echo "[download] connection reset"
      exit 2
    fi
    ;;
esac
echo "[download]  50.0% of 1.00MiB at 1.00MiB/s ETA 00:01"
printf 'data' > "$dir/Title $id [$id].mkv"
`

func TestHarnessRunAgainstFakeEngine(t *testing.T) {
	tmp := t.TempDir()
	fakeBin := filepath.Join(tmp, "bin")
	if err := os.MkdirAll(fakeBin, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(fakeBin, "yt-dlp"), []byte(fakeEngineScript), 0o755); err != nil {
		t.Fatal(err)
	}

	fixture := `{"id":"PL1","title":"List","entries":[
{"id":"good","title":"Good","url":"https://www.youtube.com/watch?v=good","duration":30},
{"id":"broken","title":"Broken","url":"https://www.youtube.com/watch?v=broken","duration":10},
{"id":"flaky","title":"Flaky","url":"https://www.youtube.com/watch?v=flaky"}]}`
	fixturePath := filepath.Join(tmp, "flat.json")
	if err := os.WriteFile(fixturePath, []byte(fixture), 0o644); err != nil {
		t.Fatal(err)
	}
	callLog := filepath.Join(tmp, "calls.log")
	t.Setenv("YTDLP_FIXTURE", fixturePath)
	t.Setenv("CALL_LOG", callLog)

	dest := filepath.Join(tmp, "dest")
	scratch := filepath.Join(tmp, "scratch")
	for _, d := range []string{dest, scratch} {
		if err := runstore.Mkdir(d); err != nil {
			t.Fatal(err)
		}
	}

	ctx := context.Background()
	client := ytdlp.Client{Binary: filepath.Join(fakeBin, "yt-dlp")}
	cat := catalog.New(dest, nil)
	triaged, err := discovery.Triage(ctx, client, cat, discovery.Options{SourceURL: "https://example.com/list"})
	if err != nil {
		t.Fatalf("triage failed: %v", err)
	}
	if triaged.TotalIDs != 3 || triaged.HasSeen != 0 {
		t.Fatalf("unexpected triage counts: total=%d seen=%d", triaged.TotalIDs, triaged.HasSeen)
	}

	var out bytes.Buffer
	stream := discovery.NewStream(client, cat, triaged.Entries, nil)
	res, err := Run(ctx, stream, client, cat, RunOptions{
		DestDir:     dest,
		ScratchDir:  scratch,
		Profiles:    ytdlp.VideoProfiles(),
		MaxAttempts: 2,
		Total:       stream.Len(),
		Proxies:     []string{"http://p1", "http://p2"},
		Clear:       runstore.ClearOptions{Retries: 1},
		Out:         &out,
	})
	if err != nil {
		t.Fatalf("run failed unexpectedly: %v", err)
	}
	if res.Downloaded != 2 || res.Failed != 1 {
		t.Fatalf("expected 2 downloaded and 1 failed, got %+v", res)
	}

	for _, name := range []string{"Title flaky [flaky].mkv", "Title good [good].mkv", "[failed] - Title broken [broken].txt"} {
		if _, err := os.Stat(filepath.Join(dest, name)); err != nil {
			t.Fatalf("expected %s in destination: %v", name, err)
		}
	}
	if empty, err := runstore.IsEmptyDir(scratch); err != nil || !empty {
		t.Fatalf("expected empty scratch, empty=%v err=%v", empty, err)
	}
	state, err := cat.State("broken")
	if err != nil || state != model.StateFailed {
		t.Fatalf("expected broken to be Failed, got %s (%v)", state, err)
	}

	calls, err := os.ReadFile(callLog)
	if err != nil {
		t.Fatal(err)
	}
	want := "flaky http://p1\nflaky http://p2\nbroken http://p1\nbroken http://p1\ngood http://p1\n"
	if string(calls) != want {
		t.Fatalf("unexpected engine calls:\n%s", calls)
	}
	if !strings.Contains(out.String(), "[1/3] done  flaky -> Title flaky [flaky].mkv") {
		t.Fatalf("missing done line in output:\n%s", out.String())
	}
}
