package extract

import (
	"unicode/utf8"
)

const systemPrompt = `You extract business-for-sale listings from a rendered marketplace search page.

Return ONLY a JSON object with exactly this shape, and nothing else:

{
  "listings": [
    {
      "listing_id": string | null,       // marketplace identifier, e.g. from the listing URL
      "title": string | null,
      "url": string | null,              // absolute URL of the listing page
      "asking_price": number | string | null,
      "revenue": number | string | {"min": number | null, "max": number | null} | null,
      "profit": number | string | {"min": number | null, "max": number | null} | null,
      "multiple": number | null,
      "industry": string | null,
      "business_model": string | null,
      "location": string | null,
      "listed_date": "YYYY-MM-DD" | null,
      "established_year": number | null,
      "description": string | null
    }
  ],
  "total_found": number | null,          // total results the page says exist
  "has_more_pages": boolean
}

Rules:
- Never fabricate a field. Use null when the page does not state a value.
- Copy monetary figures as shown ("$1.2M", "500K", "$400K - $600K") or as plain numbers in US dollars.
- Use null when a figure is only a label such as "Contact Broker" or "Price on request".
- "profit" means SDE, cash flow, net profit or EBITDA as the page labels it; prefer trailing twelve months.
- Include every listing visible on the page, in page order.
- Do not wrap the JSON in markdown code fences and do not add commentary.`

// truncateContent bounds content to budget characters, cutting on a rune
// boundary. It reports whether anything was dropped.
func truncateContent(content string, budget int) (string, bool) {
	if budget <= 0 || utf8.RuneCountInString(content) <= budget {
		return content, false
	}
	runes := []rune(content)
	return string(runes[:budget]), true
}
