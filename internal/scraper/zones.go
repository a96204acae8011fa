package scraper

import (
	"fmt"
	"strings"
)

// Zone is a search area: a center commune and its neighbours within about
// ten kilometres.
type Zone struct {
	Key         string
	Center      string
	PostalCodes []string
	Communes    []string
}

var (
	ZoneVergt = Zone{
		Key:         "vergt",
		Center:      "Vergt",
		PostalCodes: []string{"24380", "24400", "24420"},
		Communes: []string{
			"Vergt", "Église-Neuve-de-Vergt", "Grun-Bordas", "Saint-Michel-de-Double",
			"Salon", "Fouleix", "Breuilh", "Chalagnac", "Creyssensac-et-Pissot",
			"Saint-Mayme-de-Péreyrol", "Lacropte", "Cendrieux", "Saint-Félix-de-Villadeix",
		},
	}
	ZoneBugue = Zone{
		Key:         "bugue",
		Center:      "Le Bugue",
		PostalCodes: []string{"24260", "24480", "24510", "24220"},
		Communes: []string{
			"Le Bugue", "Campagne", "Saint-Chamassy", "Limeuil", "Audrix",
			"Mauzens-et-Miremont", "Les Eyzies", "Journiac", "Le Buisson-de-Cadouin",
			"Saint-Avit-Sénieur", "Trémolat", "Paunat", "Sainte-Alvère",
		},
	}
)

// Zones lists the built-in areas in sweep order.
func Zones() []Zone { return []Zone{ZoneVergt, ZoneBugue} }

func ZoneByKey(key string) (Zone, error) {
	for _, z := range Zones() {
		if z.Key == strings.ToLower(strings.TrimSpace(key)) {
			return z, nil
		}
	}
	return Zone{}, fmt.Errorf("unknown zone %q", key)
}

// Portals that have a job builder.
const (
	PortalLeboncoin = "leboncoin"
	PortalSeloger   = "seloger"
	PortalBienici   = "bienici"
)

const (
	actorLeboncoin      = "drobnikj/crawler-leboncoin"
	actorContentCrawler = "apify/website-content-crawler"
)

// JobSpec is one actor run request.
type JobSpec struct {
	Actor string
	Input any
}

type startURL struct {
	URL string `json:"url"`
}

type proxyConfig struct {
	UseApifyProxy    bool     `json:"useApifyProxy"`
	ApifyProxyGroups []string `json:"apifyProxyGroups,omitempty"`
}

type leboncoinInput struct {
	StartURLs []startURL  `json:"startUrls"`
	MaxItems  int         `json:"maxItems"`
	Proxy     proxyConfig `json:"proxy"`
}

type crawlerInput struct {
	StartURLs     []startURL `json:"startUrls"`
	MaxCrawlPages int        `json:"maxCrawlPages"`
	CrawlerType   string     `json:"crawlerType"`
}

// BuildJob returns the actor request for portal over zone.
func BuildJob(portal string, z Zone) (JobSpec, error) {
	switch portal {
	case PortalLeboncoin:
		in := leboncoinInput{MaxItems: 100, Proxy: proxyConfig{UseApifyProxy: true, ApifyProxyGroups: []string{"RESIDENTIAL"}}}
		for _, cp := range z.PostalCodes {
			in.StartURLs = append(in.StartURLs, startURL{URL: "https://www.leboncoin.fr/recherche?category=9&locations=" + cp + "&owner_type=all"})
		}
		return JobSpec{Actor: actorLeboncoin, Input: in}, nil
	case PortalSeloger:
		in := crawlerInput{MaxCrawlPages: 20, CrawlerType: "cheerio"}
		communes := z.Communes
		if len(communes) > 5 {
			communes = communes[:5]
		}
		for _, c := range communes {
			in.StartURLs = append(in.StartURLs, startURL{URL: "https://www.seloger.com/immobilier/achat/immo-" + slug(c) + "-24/"})
		}
		return JobSpec{Actor: actorContentCrawler, Input: in}, nil
	case PortalBienici:
		in := crawlerInput{
			StartURLs:     []startURL{{URL: "https://www.bienici.com/recherche/achat/dordogne-24?page=1"}},
			MaxCrawlPages: 50,
			CrawlerType:   "playwright",
		}
		return JobSpec{Actor: actorContentCrawler, Input: in}, nil
	}
	return JobSpec{}, fmt.Errorf("unknown portal %q", portal)
}

var slugReplacer = strings.NewReplacer(" ", "-", "é", "e", "è", "e")

func slug(commune string) string {
	return slugReplacer.Replace(strings.ToLower(commune))
}
