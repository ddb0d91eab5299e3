// Package title guesses what a video file is from its name.
package title

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/dhowden/tag"
)

var ErrUnknownType = errors.New("unknown title type")

type Kind string

const (
	Movie   Kind = "movie"
	Episode Kind = "episode"
)

// Info identifies a movie or an episode of a show.
type Info struct {
	Kind    Kind
	Title   string
	Season  int
	Episode int
	Year    int
}

func (i Info) String() string {
	switch i.Kind {
	case Episode:
		return fmt.Sprintf("%s S%02dE%02d", i.Title, i.Season, i.Episode)
	case Movie:
		if i.Year > 0 {
			return fmt.Sprintf("%s (%d)", i.Title, i.Year)
		}
		return i.Title
	}
	return ""
}

var (
	seasonEpisodeRe = regexp.MustCompile(`(?i)^(.*?)(?:^|[\s._\-\[(]+)s(\d{1,2})[\s._-]*e(\d{1,3})`)
	crossEpisodeRe  = regexp.MustCompile(`(?i)^(.*?)(?:^|[\s._\-\[(]+)(\d{1,2})x(\d{2,3})(?:$|\D)`)
	yearRe          = regexp.MustCompile(`(?:^|[\s._\-(\[])((?:19|20)\d{2})(?:$|[\s._\-)\]])`)
	qualityRe       = regexp.MustCompile(`(?i)(?:^|[\s._\-(\[])(?:2160p|1080p|720p|576p|480p|4k|uhd|bluray|blu-ray|bdrip|brrip|web-?dl|webrip|hdtv|dvdrip|x264|x265|h\.?26[45]|hevc|remux|proper|repack|extended|unrated)(?:$|[\s._\-)\]])`)
	groupPrefixRe   = regexp.MustCompile(`^\[[^\]]*\]\s*`)
	extRe           = regexp.MustCompile(`^\.[A-Za-z0-9]{2,4}$`)
	seasonDirRe     = regexp.MustCompile(`(?i)^(season|series|staffel)\s*\d+$|^s\d{1,2}$`)
)

// Guess derives title information from a path or URL.
func Guess(p string) (Info, error) {
	name, dir := splitName(p)
	name = groupPrefixRe.ReplaceAllString(stripExt(name), "")

	if info, ok := guessEpisode(name); ok {
		if info.Title == "" {
			info.Title = titleFromDir(dir)
		}
		if info.Title == "" {
			return Info{}, fmt.Errorf("%w: no show name in %q", ErrUnknownType, p)
		}
		return info, nil
	}

	info := Info{Kind: Movie, Title: name}
	if loc := lastYear(name); loc != nil {
		info.Title = name[:loc[0]]
		info.Year, _ = strconv.Atoi(name[loc[2]:loc[3]])
	}
	if loc := qualityRe.FindStringIndex(info.Title); loc != nil {
		info.Title = info.Title[:loc[0]]
	}
	info.Title = clean(info.Title)
	if info.Title == "" {
		return Info{}, fmt.Errorf("%w: %q", ErrUnknownType, p)
	}
	return info, nil
}

func guessEpisode(name string) (Info, bool) {
	for _, re := range []*regexp.Regexp{seasonEpisodeRe, crossEpisodeRe} {
		m := re.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		season, _ := strconv.Atoi(m[2])
		episode, _ := strconv.Atoi(m[3])
		title := m[1]
		if loc := lastYear(title); loc != nil {
			title = title[:loc[0]]
		}
		return Info{Kind: Episode, Title: clean(title), Season: season, Episode: episode}, true
	}
	return Info{}, false
}

// lastYear returns the submatch indexes of the last year that is not at the
// start of name, so "2001.A.Space.Odyssey.1968" keeps its leading number.
func lastYear(name string) []int {
	all := yearRe.FindAllStringSubmatchIndex(name, -1)
	for i := len(all) - 1; i >= 0; i-- {
		if all[i][2] > 0 {
			return all[i]
		}
	}
	return nil
}

func splitName(p string) (name, dir string) {
	if u, err := url.Parse(p); err == nil && len(u.Scheme) > 1 {
		base := path.Base(u.Path)
		if unescaped, err := url.PathUnescape(base); err == nil {
			base = unescaped
		}
		return base, path.Dir(u.Path)
	}
	return filepath.Base(p), filepath.Dir(p)
}

func stripExt(name string) string {
	ext := filepath.Ext(name)
	if extRe.MatchString(ext) && strings.IndexFunc(ext, isLetter) >= 0 {
		return strings.TrimSuffix(name, ext)
	}
	return name
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func titleFromDir(dir string) string {
	for range 2 {
		base := filepath.Base(dir)
		if base == "." || base == string(filepath.Separator) || base == "/" {
			return ""
		}
		if !seasonDirRe.MatchString(base) {
			return clean(groupPrefixRe.ReplaceAllString(base, ""))
		}
		dir = filepath.Dir(dir)
	}
	return ""
}

func clean(s string) string {
	s = strings.NewReplacer(".", " ", "_", " ").Replace(s)
	s = strings.Trim(s, " -([")
	return strings.Join(strings.Fields(s), " ")
}

// Resolver guesses from the file name and, for movies in mp4 containers,
// prefers the embedded title tag.
type Resolver struct {
	ReadTags bool
	Logger   *slog.Logger
}

func (r Resolver) Resolve(p string) (Info, error) {
	info, err := Guess(p)
	if err != nil {
		return Info{}, err
	}
	if !r.ReadTags || info.Kind != Movie || !hasTagContainer(p) {
		return info, nil
	}

	title, year, err := readTags(p)
	if err != nil {
		r.logger().Debug("no usable tags", slog.String("path", p), slog.Any("err", err))
		return info, nil
	}
	if title != "" {
		info.Title = title
	}
	if year > 0 {
		info.Year = year
	}
	return info, nil
}

func (r Resolver) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func hasTagContainer(p string) bool {
	if u, err := url.Parse(p); err == nil && len(u.Scheme) > 1 {
		return false
	}
	switch strings.ToLower(filepath.Ext(p)) {
	case ".mp4", ".m4v", ".mov":
		return true
	}
	return false
}

func readTags(p string) (string, int, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return "", 0, err
	}
	return strings.TrimSpace(m.Title()), m.Year(), nil
}
