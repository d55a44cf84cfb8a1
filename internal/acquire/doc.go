// Package acquire downloads the DRF daily racing program PDF.
//
// An Acquirer drives a browser through login, a CAPTCHA the operator solves
// by hand, the handicapping menu and the program calendar. It then fetches
// the PDF with the browser's session cookies. The PDF is only written once
// the server has answered 200 with application/pdf. The browser session is
// always closed before Acquire returns.
package acquire
