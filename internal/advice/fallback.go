package advice

// FallbackAdvice is the canned answer substituted when the model's
// reply is unusable or judged too generic. It is written for the hot,
// fairly dry conditions the sensor ranges cover, so it stays plausible
// whatever the farmer actually asked.
const FallbackAdvice = `Based on the current farm conditions, here's why you might be experiencing issues with your crops:

**Current Conditions Analysis:**
- Temperature: 32-36°C (high for many crops)
- Humidity: Low-to-moderate (30-40%)
- Soil moisture: Variable (20-50%)

**Common Problems at These Conditions:**

1. **Heat Stress & Transpiration**:
   - Most crops struggle when temperatures exceed 32°C
   - High temperatures with low humidity cause excessive water loss
   - SOLUTION: Apply shade cloth (30% shade) during peak hours (10am-3pm)

2. **Root Development Issues**:
   - Hot soil inhibits proper root growth and nutrient uptake
   - SOLUTION: Apply 2-3 inches of organic mulch to cool soil and retain moisture

3. **Pollination Problems**:
   - Hot, dry conditions reduce pollen viability in flowering crops
   - SOLUTION: Mist plants briefly during morning hours to increase humidity

4. **Watering Strategy Adjustment**:
   - Current conditions require deeper, less frequent watering
   - SOLUTION: Apply water directly to soil (not leaves) early morning, ensuring it reaches 6-8 inches deep

5. **Nutrient Stress**:
   - Heat accelerates both nutrient demand and nutrient leaching
   - SOLUTION: Apply half-strength liquid fertilizer weekly instead of full-strength monthly

For specific crop recommendations, please provide details about what you're growing and the current growth stage.`
