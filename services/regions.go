package services

import "repairshop-scraper/models"

type centroid struct {
	lat, lng float64
}

// nationalCentroid is used for postal codes outside departmentCentroids.
var nationalCentroid = centroid{46.603354, 1.888334}

// departmentCentroids maps the first two postal digits to the department's
// main city.
var departmentCentroids = map[string]centroid{
	"06": {43.7102, 7.2620},  // Nice
	"13": {43.2965, 5.3698},  // Marseille
	"21": {47.3220, 5.0415},  // Dijon
	"31": {43.6047, 1.4442},  // Toulouse
	"33": {44.8378, -0.5792}, // Bordeaux
	"34": {43.6108, 3.8767},  // Montpellier
	"35": {48.1173, -1.6778}, // Rennes
	"37": {47.3941, 0.6848},  // Tours
	"38": {45.1885, 5.7245},  // Grenoble
	"44": {47.2184, -1.5536}, // Nantes
	"49": {47.4784, -0.5632}, // Angers
	"51": {49.2583, 4.0317},  // Reims
	"59": {50.6292, 3.0573},  // Lille
	"63": {45.7772, 3.0870},  // Clermont-Ferrand
	"67": {48.5734, 7.7521},  // Strasbourg
	"69": {45.7640, 4.8357},  // Lyon
	"75": {48.8566, 2.3522},  // Paris
	"76": {49.4432, 1.0999},  // Rouen
	"77": {48.5421, 2.6554},  // Melun
	"78": {48.8049, 2.1204},  // Versailles
	"91": {48.6298, 2.4417},  // Évry
	"92": {48.8924, 2.2071},  // Nanterre
	"93": {48.9077, 2.4397},  // Bobigny
	"94": {48.7904, 2.4556},  // Créteil
	"95": {49.0364, 2.0761},  // Cergy
}

// regionCentroid returns the centroid for postalCode's department, or the
// national centroid.
func regionCentroid(postalCode string) centroid {
	if len(postalCode) == 5 && postalCode != models.UnknownPostalCode {
		if c, ok := departmentCentroids[postalCode[:2]]; ok {
			return c
		}
	}
	return nationalCentroid
}
