package cookies

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Cookie is one row of a Netscape cookie jar.
type Cookie struct {
	Domain          string
	DomainSpecified bool
	Path            string
	Secure          bool
	// Expires is a unix timestamp; 0 marks a session cookie.
	Expires int64
	Name    string
	Value   string
}

const jarHeader = "# Netscape HTTP Cookie File\n" +
	"# http://curl.haxx.se/rfc/cookie_spec.html\n" +
	"# This is a generated file!  Do not edit.\n"

// ParseNetscape reads the tab separated rows of a cookie jar, skipping
// comments and malformed lines. The #HttpOnly_ prefix is kept off the domain.
func ParseNetscape(r io.Reader) ([]Cookie, error) {
	var out []Cookie
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if strings.HasPrefix(line, "#HttpOnly_") {
			line = strings.TrimPrefix(line, "#HttpOnly_")
		} else if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, "\t")
		if len(parts) < 7 {
			continue
		}
		expires, _ := strconv.ParseInt(strings.TrimSpace(parts[4]), 10, 64)
		out = append(out, Cookie{
			Domain:          parts[0],
			DomainSpecified: strings.EqualFold(parts[1], "TRUE"),
			Path:            parts[2],
			Secure:          strings.EqualFold(parts[3], "TRUE"),
			Expires:         expires,
			Name:            parts[5],
			Value:           parts[6],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read cookie jar: %w", err)
	}
	return out, nil
}

// WriteNetscape serializes cookies with the standard three line header.
func WriteNetscape(w io.Writer, cookies []Cookie) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(jarHeader); err != nil {
		return err
	}
	for _, c := range cookies {
		expires := c.Expires
		if expires < 0 {
			expires = 0
		}
		row := strings.Join([]string{
			c.Domain,
			boolField(c.DomainSpecified),
			c.Path,
			boolField(c.Secure),
			strconv.FormatInt(expires, 10),
			c.Name,
			c.Value,
		}, "\t")
		if _, err := bw.WriteString(row + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// FilterDomain keeps cookies set for domain or any of its subdomains.
func FilterDomain(cookies []Cookie, domain string) []Cookie {
	d := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(domain), "."))
	if d == "" {
		return cookies
	}
	out := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		cd := strings.ToLower(strings.TrimPrefix(c.Domain, "."))
		if cd == d || strings.HasSuffix(cd, "."+d) {
			out = append(out, c)
		}
	}
	return out
}

func boolField(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}
