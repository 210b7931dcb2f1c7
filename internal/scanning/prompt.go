package scanning

// receiptScanPrompt is the shared prompt used by the model-backed extractors
const receiptScanPrompt = `You are analyzing a photographed or scanned purchase receipt. Carefully read all text in the image and extract:

1. **Merchant**: the store or business name, usually the largest text at the top.
2. **Line items**: every purchased item with its name, quantity and line price. Add a short spending category (e.g. "Groceries", "Pharmacy", "Dining") when obvious.
3. **Date**: the transaction date in ISO 8601 format (YYYY-MM-DD).
4. **Totals**: the final total and, when printed, the tax amount.
5. **Currency**: the ISO 4217 code (e.g. "USD", "ZAR", "PKR").

Return ONLY valid JSON in this exact format:
{
  "items": [{"name": "Item", "quantity": 1, "price": 0.00, "category": "Category"}],
  "summary": {
    "merchant_name": "Store Name",
    "total_amount": 0.00,
    "tax_amount": 0.00,
    "date": "YYYY-MM-DD",
    "currency": "USD"
  },
  "status": "success",
  "message": "Short note about the receipt"
}

Important:
- Amounts and quantities must be numbers, not strings
- Omit tax_amount when no tax is printed
- If the image is not a receipt, return {"items": [], "summary": null, "status": "error", "message": "reason"}
- Do not include any text before or after the JSON
- Do not use markdown code blocks`
