package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	appLog "luachboard/internal/log"
)

// UserAgent is sent with every provider request.
const UserAgent = "LuachBoard/1.0"

const (
	defaultNominatimURL = "https://nominatim.openstreetmap.org"
	defaultZipCodesURL  = "https://api.zip-codes.com/ZipCodesAPI.svc/1.0"
	defaultGeoNamesURL  = "http://api.geonames.org"
)

var errNoResults = errors.New("No results found")

// getJSON issues a GET and decodes a JSON body into out.
func getJSON(ctx context.Context, client *http.Client, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")

	appLog.Debug("geocode request", "url", redactURL(rawURL))

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

// redactURL keeps scheme and host only so keys and usernames in query
// strings stay out of the logs.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "geocode://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}

// Nominatim is the free OpenStreetMap geocoder. It also serves reverse
// lookups.
type Nominatim struct {
	client  *http.Client
	baseURL string
}

// NewNominatim uses the public endpoint when baseURL is empty.
func NewNominatim(client *http.Client, baseURL string) *Nominatim {
	if baseURL == "" {
		baseURL = defaultNominatimURL
	}
	return &Nominatim{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (n *Nominatim) Name() string { return "Nominatim" }

type nominatimPlace struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

func (n *Nominatim) Lookup(ctx context.Context, zip string) (Place, error) {
	q := url.Values{}
	q.Set("q", zip)
	q.Set("countrycodes", "us")
	q.Set("format", "json")
	q.Set("limit", "1")

	var results []nominatimPlace
	if err := getJSON(ctx, n.client, n.baseURL+"/search?"+q.Encode(), &results); err != nil {
		return Place{}, err
	}
	if len(results) == 0 {
		return Place{}, errNoResults
	}
	lat, lon, err := parsePair(results[0].Lat, results[0].Lon)
	if err != nil {
		return Place{}, err
	}
	return Place{Name: results[0].DisplayName, Latitude: lat, Longitude: lon, Provider: n.Name()}, nil
}

// Reverse returns the first two comma separated parts of the display name.
func (n *Nominatim) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("format", "json")

	var result nominatimPlace
	if err := getJSON(ctx, n.client, n.baseURL+"/reverse?"+q.Encode(), &result); err != nil {
		return "", err
	}
	if result.DisplayName == "" {
		return "", errNoResults
	}
	return shortName(result.DisplayName), nil
}

func shortName(display string) string {
	parts := strings.Split(display, ",")
	if len(parts) < 2 {
		return strings.TrimSpace(display)
	}
	return strings.TrimSpace(parts[0]) + ", " + strings.TrimSpace(parts[1])
}

// ZipCodes is the zip-codes.com API. Without a key it fails immediately.
type ZipCodes struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

func NewZipCodes(client *http.Client, baseURL, apiKey string) *ZipCodes {
	if baseURL == "" {
		baseURL = defaultZipCodesURL
	}
	return &ZipCodes{client: client, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

func (z *ZipCodes) Name() string { return "ZipCodes" }

type zipCodesDetails struct {
	Error     string `json:"Error"`
	City      string `json:"City"`
	State     string `json:"State"`
	Latitude  string `json:"Latitude"`
	Longitude string `json:"Longitude"`
}

func (z *ZipCodes) Lookup(ctx context.Context, zip string) (Place, error) {
	if z.apiKey == "" {
		return Place{}, errors.New("Zip API not configured")
	}
	five := zip[:5]
	u := z.baseURL + "/QuickGetZipCodeDetails/" + url.PathEscape(five) + "?key=" + url.QueryEscape(z.apiKey)

	var d zipCodesDetails
	if err := getJSON(ctx, z.client, u, &d); err != nil {
		return Place{}, err
	}
	if d.Error != "" {
		return Place{}, errors.New(d.Error)
	}
	if d.Latitude == "" || d.Longitude == "" {
		return Place{}, errNoResults
	}
	lat, lon, err := parsePair(d.Latitude, d.Longitude)
	if err != nil {
		return Place{}, err
	}
	return Place{Name: cityState(d.City, d.State), Latitude: lat, Longitude: lon, Provider: z.Name()}, nil
}

// GeoNames is the geonames.org postal code search. It needs a registered
// username.
type GeoNames struct {
	client   *http.Client
	baseURL  string
	username string
}

func NewGeoNames(client *http.Client, baseURL, username string) *GeoNames {
	if baseURL == "" {
		baseURL = defaultGeoNamesURL
	}
	return &GeoNames{client: client, baseURL: strings.TrimRight(baseURL, "/"), username: username}
}

func (g *GeoNames) Name() string { return "GeoNames" }

type geoNamesResponse struct {
	PostalCodes []struct {
		PlaceName  string  `json:"placeName"`
		AdminCode1 string  `json:"adminCode1"`
		Lat        float64 `json:"lat"`
		Lng        float64 `json:"lng"`
	} `json:"postalCodes"`
}

func (g *GeoNames) Lookup(ctx context.Context, zip string) (Place, error) {
	if g.username == "" {
		return Place{}, errors.New("GeoNames not configured")
	}
	q := url.Values{}
	q.Set("postalcode", zip[:5])
	q.Set("country", "US")
	q.Set("maxRows", "1")
	q.Set("username", g.username)

	var resp geoNamesResponse
	if err := getJSON(ctx, g.client, g.baseURL+"/postalCodeSearchJSON?"+q.Encode(), &resp); err != nil {
		return Place{}, err
	}
	if len(resp.PostalCodes) == 0 {
		return Place{}, errNoResults
	}
	pc := resp.PostalCodes[0]
	return Place{Name: cityState(pc.PlaceName, pc.AdminCode1), Latitude: pc.Lat, Longitude: pc.Lng, Provider: g.Name()}, nil
}

func parsePair(lat, lon string) (float64, float64, error) {
	la, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad latitude %q", lat)
	}
	lo, err := strconv.ParseFloat(strings.TrimSpace(lon), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad longitude %q", lon)
	}
	return la, lo, nil
}

func cityState(city, state string) string {
	switch {
	case city == "":
		return state
	case state == "":
		return city
	default:
		return city + ", " + state
	}
}
