// Package browser drives an interactive Chrome session.
//
// Browser is the small surface acquisition needs: navigate, type, click,
// read the page and its cookies. Chrome implements it with chromedp; tests
// substitute a fake.
package browser
